package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"stablePool/internal/dex"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseTopic0 resolves topic0 filters. Each input is either a 32-byte hash or
// a pool event name such as TokenSwap. No inputs selects every pool event.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	known, err := dex.PoolEventTopics()
	if err != nil {
		return nil, err
	}

	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "0x") {
			topic, ok := lookupEvent(known, input)
			if !ok {
				return nil, fmt.Errorf("unknown pool event: %s", input)
			}
			topics = append(topics, topic)
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(data) != 32 {
			return nil, fmt.Errorf("invalid topic0 length: %s", input)
		}
		topics = append(topics, common.BytesToHash(data))
	}

	if len(topics) == 0 {
		for _, topic := range known {
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

func lookupEvent(known map[string]common.Hash, name string) (common.Hash, bool) {
	for event, topic := range known {
		if strings.EqualFold(event, name) {
			return topic, true
		}
	}
	return common.Hash{}, false
}
