package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/symbols"
)

const createTickTableSQL = "CREATE TABLE IF NOT EXISTS `%s` (" +
	"`Timestamp` BIGINT NOT NULL, " +
	"`BidPrice` DOUBLE NOT NULL, " +
	"`AskPrice` DOUBLE NOT NULL, " +
	"`BidVolume` DOUBLE NOT NULL, " +
	"`AskVolume` DOUBLE NOT NULL, " +
	"PRIMARY KEY (`Timestamp`)" +
	") ENGINE=InnoDB"

// TableProvisioner creates per-symbol tick tables on demand
type TableProvisioner struct {
	db      DBTX
	logger  *logrus.Entry
	ensured sync.Map
}

// NewTableProvisioner creates a new table provisioner
func NewTableProvisioner(db DBTX, logger *logrus.Logger) *TableProvisioner {
	return &TableProvisioner{
		db:     db,
		logger: logger.WithField("component", "table-provisioner"),
	}
}

// Ensure creates the symbol's table if it does not exist. Symbols already
// ensured by this process are not sent to the server again.
func (p *TableProvisioner) Ensure(ctx context.Context, symbol string) error {
	if !symbols.ValidIdentifier(symbol) {
		return fmt.Errorf("%w: %q", symbols.ErrInvalidSymbol, symbol)
	}

	if _, ok := p.ensured.Load(symbol); ok {
		return nil
	}

	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(createTickTableSQL, symbol)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", symbol, err)
	}

	p.ensured.Store(symbol, struct{}{})
	p.logger.WithField("symbol", symbol).Debug("Table ensured")

	return nil
}
