package blockhash

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const DefaultEsploraTimeout = 10 * time.Second

// EsploraSource resolves heights through an Esplora compatible REST API,
// e.g. https://blockstream.info/api.
type EsploraSource struct {
	client *resty.Client
}

func NewEsploraSource(baseURL string) *EsploraSource {
	return &EsploraSource{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(DefaultEsploraTimeout),
	}
}

func (s *EsploraSource) BlockHash(ctx context.Context, height uint64) (chainhash.Hash, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/block-height/%d", height))
	if err != nil {
		return chainhash.Hash{}, err
	}
	if resp.IsError() {
		logger.WithFields(logger.Fields{
			"height": height,
			"status": resp.StatusCode(),
		}).Debug("esplora lookup failed")
		if resp.StatusCode() == 404 {
			return chainhash.Hash{}, fmt.Errorf("%w: %d", ErrUnknownHeight, height)
		}
		return chainhash.Hash{}, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status())
	}

	// The body is the hash in display order.
	h, err := chainhash.NewHashFromStr(strings.TrimSpace(resp.String()))
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return *h, nil
}
