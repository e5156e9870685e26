package indexer

import (
	"time"

	"gorm.io/gorm"
)

// LoanEvent is one persisted contract event. Amounts are base-10 strings so
// 256-bit values survive every SQL backend.
type LoanEvent struct {
	ID          uint   `gorm:"primaryKey"`
	BlockNumber uint64 `gorm:"index"`
	TxHash      string `gorm:"size:66;uniqueIndex:idx_event_position"`
	LogIndex    int    `gorm:"uniqueIndex:idx_event_position"`
	Type        string `gorm:"size:32;index"`
	Contract    string `gorm:"size:42"`
	Borrower    string `gorm:"size:42;index"`
	Token       string `gorm:"size:42"`
	TokenName   string `gorm:"size:32"`
	Amount      string `gorm:"size:80"`
	Collateral  string `gorm:"size:80"`
	Interest    string `gorm:"size:80"`
	Closed      bool
	CreatedAt   time.Time
}

// Position is the indexed view of a borrower's loan.
type Position struct {
	Borrower         string `gorm:"size:42;primaryKey"`
	Contract         string `gorm:"size:42"`
	CollateralToken  string `gorm:"size:42"`
	Principal        string `gorm:"size:80"`
	Outstanding      string `gorm:"size:80"`
	CollateralAmount string `gorm:"size:80"`
	Open             bool   `gorm:"index"`
	OpenedAt         uint64
	ClosedAt         uint64
	UpdatedAt        time.Time
}

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&LoanEvent{}, &Position{})
}
