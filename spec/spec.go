package spec

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/params/forks"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChainSpec is the read-only description of the chain blocks are prepared
// for. It is built once and shared by pointer.
type ChainSpec struct {
	Name   string
	Config *params.ChainConfig

	// BaseFee holds base fee parameter overrides keyed by the fork they
	// activate with. Forks without an entry inherit the closest earlier one,
	// falling back to DefaultBaseFeeParams.
	BaseFee map[forks.Fork]BaseFeeParams
}

func New(name string, config *params.ChainConfig) *ChainSpec {
	return &ChainSpec{Name: name, Config: config, BaseFee: make(map[forks.Fork]BaseFeeParams)}
}

func Mainnet() *ChainSpec { return New("mainnet", params.MainnetChainConfig) }
func Holesky() *ChainSpec { return New("holesky", params.HoleskyChainConfig) }
func Sepolia() *ChainSpec { return New("sepolia", params.SepoliaChainConfig) }

// Dev is a post-merge chain with every supported time-based fork active
// from genesis.
func Dev() *ChainSpec {
	var genesis uint64
	return Custom("dev", 1337, &genesis, &genesis, &genesis)
}

// Custom builds a chain that merged at genesis with all block-based forks
// active, and the given time-based fork activations (nil means never).
func Custom(name string, chainID uint64, shanghai, cancun, prague *uint64) *ChainSpec {
	zero := big.NewInt(0)
	return New(name, &params.ChainConfig{
		ChainID:                 new(big.Int).SetUint64(chainID),
		HomesteadBlock:          zero,
		EIP150Block:             zero,
		EIP155Block:             zero,
		EIP158Block:             zero,
		ByzantiumBlock:          zero,
		ConstantinopleBlock:     zero,
		PetersburgBlock:         zero,
		IstanbulBlock:           zero,
		MuirGlacierBlock:        zero,
		BerlinBlock:             zero,
		LondonBlock:             zero,
		ArrowGlacierBlock:       zero,
		GrayGlacierBlock:        zero,
		MergeNetsplitBlock:      zero,
		TerminalTotalDifficulty: zero,
		ShanghaiTime:            shanghai,
		CancunTime:              cancun,
		PragueTime:              prague,
		BlobScheduleConfig: &params.BlobScheduleConfig{
			Cancun: params.DefaultCancunBlobConfig,
			Prague: params.DefaultPragueBlobConfig,
		},
	})
}

// ByName returns the built-in chain spec with the given network name.
func ByName(name string) (*ChainSpec, error) {
	switch strings.ToLower(name) {
	case "dev":
		return Dev(), nil
	case "mainnet":
		return Mainnet(), nil
	case "holesky":
		return Holesky(), nil
	case "sepolia":
		return Sepolia(), nil
	}
	return nil, fmt.Errorf("unknown chain %q", name)
}

// Load reads a chain config in go-ethereum JSON form, either bare or
// embedded in a genesis file under "config".
func Load(name, path string) (*ChainSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var genesis struct {
		Config *params.ChainConfig `json:"config"`
	}
	if err := json.Unmarshal(b, &genesis); err != nil {
		return nil, fmt.Errorf("decoding chain config %s: %w", path, err)
	}
	config := genesis.Config
	if config == nil {
		config = new(params.ChainConfig)
		if err := json.Unmarshal(b, config); err != nil {
			return nil, fmt.Errorf("decoding chain config %s: %w", path, err)
		}
	}
	if config.ChainID == nil {
		return nil, fmt.Errorf("chain config %s has no chainId", path)
	}
	return New(name, config), nil
}

func (c *ChainSpec) ChainID() uint64 {
	return c.Config.ChainID.Uint64()
}

// SpecAt resolves the fork active at the given timestamp. The chain is
// assumed to be past the merge, so the result is never earlier than Paris.
func (c *ChainSpec) SpecAt(timestamp uint64) forks.Fork {
	return c.Config.LatestFork(timestamp)
}

func (c *ChainSpec) String() string {
	return fmt.Sprintf("%s (chain id %d)", c.Name, c.ChainID())
}
