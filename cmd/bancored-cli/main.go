package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/nbutton23/zxcvbn-go"
	"golang.org/x/term"

	"bancored/client"
	"bancored/config"
	"bancored/protocol"
)

type cli struct {
	client *client.Client
	in     *bufio.Reader

	// Local session state only; the server keeps nothing between connections.
	username string
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	key, err := cfg.SharedKey()
	if err != nil {
		log.Fatalf("resolve shared key: %v", err)
	}

	c := &cli{
		client: client.New(cfg.ListenAddr(), key),
		in:     bufio.NewReader(os.Stdin),
	}
	c.banner(cfg.ListenAddr())
	c.mainMenu()
}

func (c *cli) banner(addr string) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("   SISTEMA BANCARIO SEGURO - CLIENTE")
	fmt.Printf("   Servidor: %s\n", addr)
	fmt.Println(strings.Repeat("=", 60))
}

func (c *cli) mainMenu() {
	for {
		fmt.Println("\n" + strings.Repeat("-", 60))
		fmt.Println("   MENU PRINCIPAL")
		fmt.Println("[1] Registro de nuevo usuario")
		fmt.Println("[2] Iniciar sesion (Login)")
		fmt.Println("[3] Salir")

		switch c.prompt("Seleccione una opcion: ") {
		case "1":
			c.register()
		case "2":
			if c.login() {
				c.sessionMenu()
			}
		case "3":
			fmt.Println("\n[*] Hasta luego!")
			return
		default:
			fmt.Println("[ERROR] Opcion invalida")
		}
	}
}

func (c *cli) sessionMenu() {
	for {
		fmt.Println("\n" + strings.Repeat("-", 60))
		fmt.Printf("   SESION: %s\n", c.username)
		fmt.Println("[1] Realizar transferencia")
		fmt.Println("[2] Cerrar sesion")

		switch c.prompt("Seleccione una opcion: ") {
		case "1":
			c.transfer()
		case "2":
			c.username = ""
			return
		default:
			fmt.Println("[ERROR] Opcion invalida")
		}
	}
}

func (c *cli) register() {
	username := c.prompt("Nombre de usuario: ")
	if username == "" {
		fmt.Println("[ERROR] El usuario no puede estar vacio")
		return
	}
	password, ok := c.promptPassword("Contraseña: ")
	if !ok {
		return
	}
	if password == "" {
		fmt.Println("[ERROR] La contraseña no puede estar vacia")
		return
	}
	confirm, ok := c.promptPassword("Confirmar contraseña: ")
	if !ok {
		return
	}
	if password != confirm {
		fmt.Println("[ERROR] Las contraseñas no coinciden")
		return
	}

	// Advisory only; the server enforces the actual policy.
	if strength := zxcvbn.PasswordStrength(password, []string{username}); strength.Score < 3 {
		fmt.Println("[AVISO] Contraseña débil; el servidor puede rechazarla")
	}

	resp, err := c.client.Register(context.Background(), username, password)
	c.report(resp, err)
}

func (c *cli) login() bool {
	username := c.prompt("Nombre de usuario: ")
	password, ok := c.promptPassword("Contraseña: ")
	if !ok {
		return false
	}

	resp, err := c.client.Login(context.Background(), username, password)
	c.report(resp, err)
	if err != nil || resp.Status != protocol.StatusOK {
		return false
	}
	c.username = username
	return true
}

func (c *cli) transfer() {
	origen := c.prompt("Cuenta origen (IBAN): ")
	destino := c.prompt("Cuenta destino (IBAN): ")
	raw := c.prompt("Cantidad (EUR): ")
	cantidad, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || cantidad <= 0 {
		fmt.Println("[ERROR] Cantidad invalida")
		return
	}

	resp, err := c.client.Transfer(context.Background(), c.username, origen, destino, cantidad)
	c.report(resp, err)
}

func (c *cli) report(resp protocol.Response, err error) {
	if err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		return
	}
	if resp.Status == protocol.StatusOK {
		fmt.Printf("[OK] %s\n", resp.Mensaje)
		if id, found := resp.Datos["id"]; found {
			fmt.Printf("     ID de transaccion: %v\n", id)
		}
		return
	}
	fmt.Printf("[ERROR] %s\n", resp.Mensaje)
}

func (c *cli) prompt(label string) string {
	fmt.Print(label)
	line, _ := c.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *cli) promptPassword(label string) (string, bool) {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		// Not a terminal (tests, pipes): fall back to a plain line read.
		line, readErr := c.in.ReadString('\n')
		if readErr != nil && line == "" {
			fmt.Printf("[ERROR] lectura de contraseña: %v\n", err)
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}
	return string(raw), true
}
