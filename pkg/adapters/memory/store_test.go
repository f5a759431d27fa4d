package memory_test

import (
	"testing"

	"github.com/aretw0/osdl/pkg/adapters/memory"
	contract "github.com/aretw0/osdl/pkg/ports/tests"
)

func TestMemoryStore_Contract(t *testing.T) {
	contract.RunStateStoreContract(t, memory.NewStore())
}

func TestMemoryCache_Contract(t *testing.T) {
	contract.RunCacheStoreContract(t, memory.NewCache())
}
