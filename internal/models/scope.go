package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AccountScope selects the account side of an (account, stock) pair. Records
// written before accounts existed carry no account reference and live in the
// legacy scope; everything else is scoped to an explicit account id.
type AccountScope struct {
	id       uint
	explicit bool
}

// LegacyScope is the scope of records without an account reference.
func LegacyScope() AccountScope { return AccountScope{} }

// ExplicitScope scopes to the given account.
func ExplicitScope(accountID uint) AccountScope {
	return AccountScope{id: accountID, explicit: true}
}

// ScopeOf maps a nullable account column to its scope.
func ScopeOf(accountID *uint) AccountScope {
	if accountID == nil {
		return LegacyScope()
	}
	return ExplicitScope(*accountID)
}

func (s AccountScope) IsLegacy() bool { return !s.explicit }

// AccountID returns the nullable column value for the scope.
func (s AccountScope) AccountID() *uint {
	if !s.explicit {
		return nil
	}
	id := s.id
	return &id
}

// Where restricts db to rows of this scope.
func (s AccountScope) Where(db *gorm.DB) *gorm.DB {
	if !s.explicit {
		return db.Where("account_id IS NULL")
	}
	return db.Where("account_id = ?", s.id)
}

func (s AccountScope) String() string {
	if !s.explicit {
		return "legacy"
	}
	return fmt.Sprintf("account:%d", s.id)
}

// Pair identifies the unit of FIFO and position bookkeeping.
type Pair struct {
	Scope   AccountScope
	StockID uint
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/stock:%d", p.Scope, p.StockID)
}
