package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// GetLighthouseFile fetches {lighthouseEndpoint}{cID} from a Lighthouse HTTP
// gateway. The CID is appended verbatim, so the endpoint should carry its
// trailing slash. Non-2xx responses are errors.
func GetLighthouseFile(ctx context.Context, lighthouseEndpoint, cID string) ([]byte, error) {
	zap.L().Debug("Getting lighthouse file", zap.String("cid", cID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lighthouseEndpoint+cID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("lighthouse gateway returned %s for %s", resp.Status, cID)
	}
	return io.ReadAll(resp.Body)
}
