package chainstate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/rs/zerolog"
)

var errNoState = errors.New("rlp block files carry no state")

// RLPFile serves headers and blocks read from RLP block exports, as
// written by geth export. It carries no state.
type RLPFile struct {
	blocks []*types.Block
	byHash map[common.Hash]*types.Block
}

type countingReader struct {
	r io.Reader
	n int
}

func (cr *countingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	cr.n += n
	return n, err
}

func multiReader(filenames []string) (io.Reader, func(), error) {
	var (
		readers []io.Reader
		files   []*os.File
	)
	closeAll := func() {
		for _, fh := range files {
			fh.Close()
		}
	}
	for _, fn := range filenames {
		fh, err := os.Open(fn)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, fh)
		readers = append(readers, fh)
	}
	return io.MultiReader(readers...), closeAll, nil
}

// OpenRLPFiles reads all blocks of the given files, in order. Blocks must be
// consecutive.
func OpenRLPFiles(log zerolog.Logger, filenames ...string) (*RLPFile, error) {
	if len(filenames) == 0 {
		return nil, dbError("no rlp files given")
	}
	r, closeAll, err := multiReader(filenames)
	if err != nil {
		return nil, dbError("opening rlp file: %v", err)
	}
	defer closeAll()

	return ReadRLP(r, log)
}

// ReadRLP decodes a stream of RLP-encoded blocks.
func ReadRLP(r io.Reader, log zerolog.Logger) (*RLPFile, error) {
	cr := &countingReader{r: r}
	stream := rlp.NewStream(cr, 0)
	f := &RLPFile{byHash: make(map[common.Hash]*types.Block)}
	for i := 0; ; i++ {
		if _, _, err := stream.Kind(); err == io.EOF {
			break
		} else if err != nil {
			return nil, dbError("reading rlp block %d: %v", i, err)
		}
		var b types.Block
		if err := stream.Decode(&b); err != nil {
			return nil, dbError("decoding rlp block %d: %v", i, err)
		}
		if n := len(f.blocks); n > 0 {
			if exp := f.blocks[n-1].NumberU64() + 1; b.NumberU64() != exp {
				return nil, dbError("non-consecutive blocks (%d, expected %d)", b.NumberU64(), exp)
			}
		}
		f.blocks = append(f.blocks, &b)
		f.byHash[b.Hash()] = &b
	}
	if len(f.blocks) == 0 {
		return nil, dbError("no blocks in rlp input")
	}
	log.Info().Int("size (bytes)", cr.n).
		Uint64("first", f.blocks[0].NumberU64()).
		Uint64("last", f.blocks[len(f.blocks)-1].NumberU64()).
		Msg("Read RLP blocks")
	return f, nil
}

func (f *RLPFile) Len() int { return len(f.blocks) }

func (f *RLPFile) Latest() *types.Block { return f.blocks[len(f.blocks)-1] }

func (f *RLPFile) BlockByNumber(number uint64) (*types.Block, error) {
	first := f.blocks[0].NumberU64()
	if number < first || number-first >= uint64(len(f.blocks)) {
		return nil, dbError("block %d not in file", number)
	}
	return f.blocks[number-first], nil
}

func (f *RLPFile) LatestHeader(ctx context.Context) (*types.Header, error) {
	return f.Latest().Header(), nil
}

// StateByBlockHash always fails for known blocks, since exports carry no
// state.
func (f *RLPFile) StateByBlockHash(ctx context.Context, hash common.Hash) (Snapshot, error) {
	if _, ok := f.byHash[hash]; !ok {
		return nil, dbError("block %s not in file", hash.Hex())
	}
	return nil, fmt.Errorf("%w: block %s: %w", ErrDatabase, hash.Hex(), errNoState)
}
