package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/kubo/client/rpc"
	"go.uber.org/zap"
)

// ErrContentMismatch is returned when fetched bytes do not hash to the
// requested CID.
var ErrContentMismatch = errors.New("ipfs content does not match cid")

// defaultTimeout bounds IPFS requests issued without a deadline.
const defaultTimeout = 60 * time.Second

// ipfsBackend is the IPFSBackend implementation using the Kubo HTTP API.
type ipfsBackend struct {
	api *rpc.HttpApi
}

func newIPFSBackend(api *rpc.HttpApi) IPFSBackend {
	return &ipfsBackend{api: api}
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

// Fetch retrieves content by CID with `ipfs cat`. Content stored under a raw
// CID (the format Upload produces) is verified against the CID; other codecs
// are returned unverified.
func (f *ipfsBackend) Fetch(ctx context.Context, hash string) (content []byte, err error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	hash = formatHash(hash)
	zap.L().Debug("Hash Used to retrieve from IPFS", zap.String("hash", hash))

	if f.api == nil {
		return nil, fmt.Errorf("ipfs client not configured")
	}

	cID, err := cid.Parse(hash)
	if err != nil {
		zap.L().Error("error parsing the ipfs hash", zap.String("hash", hash), zap.Error(err))
		return nil, fmt.Errorf("parse cid %q: %w", hash, err)
	}

	resp, err := f.api.Request("cat", cID.String()).Send(ctx)
	if err != nil {
		zap.L().Error("error executing the cat command in ipfs", zap.String("hash", hash), zap.Error(err))
		return nil, err
	}
	defer func(resp *rpc.Response) {
		if cerr := resp.Close(); cerr != nil {
			zap.L().Error("error closing response in ipfs", zap.String("hash", hash), zap.Error(cerr))
		}
	}(resp)

	if resp.Error != nil {
		zap.L().Error("ipfs cat returned error", zap.String("hash", hash), zap.Error(resp.Error))
		return nil, resp.Error
	}
	content, err = io.ReadAll(resp.Output)
	if err != nil {
		return nil, fmt.Errorf("read ipfs content: %w", err)
	}

	if err := verify(cID, content); err != nil {
		zap.L().Error("IPFS hash verification failed", zap.String("expectedHash", hash), zap.Error(err))
		return nil, err
	}
	return content, nil
}

// verify recomputes the CID of a single raw block and compares it.
func verify(c cid.Cid, content []byte) error {
	if c.Type() != cid.Raw {
		return nil
	}
	sum, err := c.Prefix().Sum(content)
	if err != nil {
		return fmt.Errorf("hash content: %w", err)
	}
	if !sum.Equals(c) {
		return fmt.Errorf("%w: expected %s, got %s", ErrContentMismatch, c, sum)
	}
	return nil
}

// Upload adds data to IPFS as a CIDv1 raw-leaf file and returns ipfs://<cid>.
func (f *ipfsBackend) Upload(ctx context.Context, data []byte) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if f.api == nil {
		return "", fmt.Errorf("ipfs client not configured")
	}

	resp, err := f.api.Request("add").
		Option("cid-version", 1).
		Option("raw-leaves", true).
		Option("pin", true).
		FileBody(bytes.NewReader(data)).
		Send(ctx)
	if err != nil {
		zap.L().Error("error uploading to ipfs", zap.Error(err))
		return "", err
	}
	defer func(resp *rpc.Response) {
		if cerr := resp.Close(); cerr != nil {
			zap.L().Error("error closing ipfs response", zap.Error(cerr))
		}
	}(resp)

	if resp.Error != nil {
		zap.L().Error("ipfs add command returned error", zap.Error(resp.Error))
		return "", resp.Error
	}

	var addResp struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Output).Decode(&addResp); err != nil {
		zap.L().Error("error unmarshaling ipfs add response", zap.Error(err))
		return "", err
	}
	c, err := cid.Decode(addResp.Hash)
	if err != nil {
		return "", fmt.Errorf("ipfs returned invalid cid %q: %w", addResp.Hash, err)
	}

	zap.L().Debug("Successfully uploaded to IPFS", zap.String("hash", c.String()))
	return IpfsPrefix + c.String(), nil
}

// NewIPFSClient constructs a Kubo HTTP API client pointed at url.
func NewIPFSClient(url string) (*rpc.HttpApi, error) {
	httpClient := http.Client{
		Timeout: 30 * time.Second,
	}
	client, err := rpc.NewURLApiWithClient(url, &httpClient)
	if err != nil {
		zap.L().Error("Connection failed to IPFS", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	return client, nil
}
