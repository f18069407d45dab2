package server

import (
	"context"
	"fmt"
	"log/slog"

	"bancored/protocol"
	"bancored/storage"
)

const msgTransactionInternal = "Error al procesar la transferencia"

// Transactions appends accepted transfer intents to the audit log. Balances
// and account formats are deliberately not validated; the row is the product.
type Transactions struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewTransactions wires the transaction module.
func NewTransactions(store *storage.Store, logger *slog.Logger) *Transactions {
	return &Transactions{store: store, logger: logger}
}

// Process records the transfer and returns the user-visible outcome. The
// request reached this point with its MAC verified, so the audit row carries
// mac_verificado = true.
func (t *Transactions) Process(ctx context.Context, data *protocol.TransaccionData) (bool, string, map[string]any) {
	if data.Cantidad <= 0 {
		return false, "La cantidad debe ser mayor que cero", nil
	}

	id, err := t.store.AppendTransaction(ctx, data.Username, data.CuentaOrigen, data.CuentaDestino, data.Cantidad, true)
	if err != nil {
		t.logger.Error("registro de transacción fallido", "username", data.Username, "error", err.Error())
		return false, msgTransactionInternal, nil
	}

	t.logger.Info("transacción registrada",
		"id", id,
		"username", data.Username,
		"cuenta_origen", data.CuentaOrigen,
		"cuenta_destino", data.CuentaDestino,
		"cantidad", data.Cantidad,
	)
	return true, fmt.Sprintf("Transferencia completada (ID: %d)", id), map[string]any{"id": id}
}
