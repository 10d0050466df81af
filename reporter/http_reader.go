// Reader is the client side of a http reporter.
// Write requests are signed with the caller's key.

package reporter

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"

	"github.com/TEENet-io/bribe-go/bribe"
	mycommon "github.com/TEENet-io/bribe-go/common"
	"github.com/TEENet-io/bribe-go/spv"
)

const (
	DefaultReaderTimeout = 30 * time.Second
	// how long a signed request stays valid after it is built
	DefaultRequestExpiry = 5 * time.Minute
)

var ErrRequestFailed = errors.New("request failed")

type HttpReader struct {
	client *resty.Client
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return NewHttpReaderWithURL("http://" + serverIP + ":" + serverPort)
}

func NewHttpReaderWithURL(baseURL string) *HttpReader {
	return &HttpReader{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(DefaultReaderTimeout),
	}
}

// envelope is the shape of every reporter response.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// StatusError carries the http status and message of a failed request.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrRequestFailed, e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

func decode(resp *resty.Response, out any) error {
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%w: status %d: %v", ErrRequestFailed, resp.StatusCode(), err)
	}
	if resp.IsError() {
		return &StatusError{Status: resp.StatusCode(), Message: env.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (hr *HttpReader) get(ctx context.Context, route string, params map[string]string, out any) error {
	resp, err := hr.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(route)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (hr *HttpReader) post(ctx context.Context, key *ecdsa.PrivateKey, route string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req := hr.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(b)
	if key != nil {
		sig, err := crypto.Sign(crypto.Keccak256(b), key)
		if err != nil {
			return err
		}
		req.SetHeader(HEADER_SIGNATURE, hexutil.Encode(sig))
	}

	resp, err := req.Post(route)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// newSignedRequest returns a fresh random nonce expiring after
// DefaultRequestExpiry.
func newSignedRequest() SignedRequest {
	b := mycommon.RandBytes32()
	return SignedRequest{
		Nonce:     binary.BigEndian.Uint64(b[:8]),
		ExpiresAt: time.Now().Add(DefaultRequestExpiry).Unix(),
	}
}

func (hr *HttpReader) GetHello(ctx context.Context) (string, error) {
	resp, err := hr.client.R().SetContext(ctx).Get(ROUTE_HELLO)
	if err != nil {
		return "", err
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return "", err
	}
	return env.Message, nil
}

func (hr *HttpReader) GetBribe(ctx context.Context, wtxid common.Hash) (*BribeJSON, error) {
	var b BribeJSON
	if err := hr.get(ctx, ROUTE_BRIBE, map[string]string{"wtxid": wtxid.Hex()}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (hr *HttpReader) GetEvents(ctx context.Context, wtxid common.Hash) ([]bribe.EventRecord, error) {
	var records []bribe.EventRecord
	if err := hr.get(ctx, ROUTE_EVENTS, map[string]string{"wtxid": wtxid.Hex()}, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (hr *HttpReader) GetMiner(ctx context.Context, index uint64) (*MinerJSON, error) {
	var m MinerJSON
	if err := hr.get(ctx, ROUTE_MINER, map[string]string{"index": strconv.FormatUint(index, 10)}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (hr *HttpReader) Verify(ctx context.Context, claim *spv.Claim) (*VerdictJSON, error) {
	var v VerdictJSON
	if err := hr.post(ctx, nil, ROUTE_VERIFY, claim, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (hr *HttpReader) Claim(ctx context.Context, claim *spv.Claim) (*bribe.BribeClaimedEvent, error) {
	var ev bribe.BribeClaimedEvent
	if err := hr.post(ctx, nil, ROUTE_CLAIM, claim, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (hr *HttpReader) RecordTx(ctx context.Context, key *ecdsa.PrivateKey, wtxid common.Hash, ipfsHash string, amount *big.Int) (*BribeJSON, error) {
	var b BribeJSON
	req := &RecordTxRequest{SignedRequest: newSignedRequest(), WTXID: wtxid, IpfsHash: ipfsHash, Amount: amount}
	if err := hr.post(ctx, key, ROUTE_BRIBE, req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (hr *HttpReader) UnlockFunds(ctx context.Context, key *ecdsa.PrivateKey, wtxid common.Hash) (int64, error) {
	var u UnlockJSON
	req := &UnlockRequest{SignedRequest: newSignedRequest(), WTXID: wtxid}
	if err := hr.post(ctx, key, ROUTE_UNLOCK, req, &u); err != nil {
		return 0, err
	}
	return u.ValidUntil, nil
}

func (hr *HttpReader) WithdrawBribe(ctx context.Context, key *ecdsa.PrivateKey, wtxid common.Hash, payout common.Address) error {
	req := &WithdrawRequest{SignedRequest: newSignedRequest(), WTXID: wtxid, Payout: payout}
	return hr.post(ctx, key, ROUTE_WITHDRAW, req, nil)
}

// RegisterMiner registers the key's address under index, or under the next
// free index when index is 0.
func (hr *HttpReader) RegisterMiner(ctx context.Context, key *ecdsa.PrivateKey, index uint64) (uint64, error) {
	var m MinerJSON
	req := &RegisterMinerRequest{SignedRequest: newSignedRequest(), Index: index}
	if err := hr.post(ctx, key, ROUTE_MINER, req, &m); err != nil {
		return 0, err
	}
	return m.Index, nil
}
