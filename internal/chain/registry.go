package chain

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractBillOfLading is the contract name of the per-trade instance
// contract deployed by the factory.
const ContractBillOfLading = "BillOfLading"

//go:embed abis/*.json
var embeddedABIs embed.FS

// Registry loads and caches contract interface definitions. Lookup order for
// a contract name: a Hardhat artifact at <dir>/<Name>.sol/<Name>.json, a
// plain file at <dir>/<Name>.json, then the embedded copy shipped with the
// binary. Parsed ABIs and event topic hashes are cached after first use.
type Registry struct {
	dir string

	mu     sync.RWMutex
	abis   map[string]abi.ABI
	topics map[string]common.Hash
}

// NewRegistry creates a Registry reading artifacts from dir. dir may be empty
// to use only the embedded definitions.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:    dir,
		abis:   make(map[string]abi.ABI),
		topics: make(map[string]common.Hash),
	}
}

// ABI returns the parsed interface definition for the named contract.
func (r *Registry) ABI(contract string) (abi.ABI, error) {
	r.mu.RLock()
	ab, ok := r.abis[contract]
	r.mu.RUnlock()
	if ok {
		return ab, nil
	}

	raw, err := r.readDefinition(contract)
	if err != nil {
		return abi.ABI{}, err
	}
	ab, err = abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: parse abi for %s: %w", contract, err)
	}

	r.mu.Lock()
	r.abis[contract] = ab
	r.mu.Unlock()
	return ab, nil
}

// Event returns the named event definition from the contract's ABI.
func (r *Registry) Event(contract, event string) (abi.Event, error) {
	ab, err := r.ABI(contract)
	if err != nil {
		return abi.Event{}, err
	}
	ev, ok := ab.Events[event]
	if !ok {
		return abi.Event{}, fmt.Errorf("chain: contract %s has no event %s", contract, event)
	}
	return ev, nil
}

// EventTopic returns the topic hash (keccak of the canonical name+argument
// signature) used to filter logs for the named event. Results are cached.
func (r *Registry) EventTopic(contract, event string) (common.Hash, error) {
	key := contract + "." + event
	r.mu.RLock()
	topic, ok := r.topics[key]
	r.mu.RUnlock()
	if ok {
		return topic, nil
	}

	ev, err := r.Event(contract, event)
	if err != nil {
		return common.Hash{}, err
	}

	r.mu.Lock()
	r.topics[key] = ev.ID
	r.mu.Unlock()
	return ev.ID, nil
}

// readDefinition locates the raw ABI JSON array for a contract.
func (r *Registry) readDefinition(contract string) ([]byte, error) {
	if r.dir != "" {
		candidates := []string{
			filepath.Join(r.dir, contract+".sol", contract+".json"),
			filepath.Join(r.dir, contract+".json"),
		}
		for _, path := range candidates {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("chain: read abi %s: %w", path, err)
			}
			return extractABI(data, path)
		}
	}

	data, err := embeddedABIs.ReadFile("abis/" + contract + ".json")
	if err != nil {
		return nil, fmt.Errorf("chain: no abi definition for contract %s: %w", contract, err)
	}
	return extractABI(data, "embedded:"+contract)
}

// extractABI accepts either a raw ABI array or a Hardhat artifact object with
// an "abi" field.
func extractABI(data []byte, source string) ([]byte, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return data, nil
	}

	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("chain: parse artifact %s: %w", source, err)
	}
	if len(artifact.ABI) == 0 {
		return nil, fmt.Errorf("chain: artifact %s has no abi field", source)
	}
	return artifact.ABI, nil
}
