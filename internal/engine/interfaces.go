package engine

import (
	"github.com/Veraticus/savings-tracker/internal/service"
)

// Store is the persistence the engine needs: account metadata and the
// narrow chain contract.
type Store interface {
	service.AccountStore
	service.ChainStore
}
