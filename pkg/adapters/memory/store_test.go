package memory

import (
	"testing"

	"github.com/aretw0/roam/pkg/ports"
)

func TestStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, NewStore())
}
