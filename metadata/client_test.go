package metadata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type RoundTripFunc func(req *http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func NewMockClient(t *testing.T, status int, body string, gotURL *string) *http.Client {
	t.Helper()

	return &http.Client{
		Transport: RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if gotURL != nil {
				*gotURL = req.URL.String()
			}
			return &http.Response{
				StatusCode: status,
				Status:     http.StatusText(status),
				Body:       io.NopCloser(bytes.NewBufferString(body)),
				Header:     make(http.Header),
			}, nil
		}),
	}
}

func TestURLs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://data.austintexas.gov/dataset/abcd-1234", DatasetURL(DefaultSite, "abcd-1234"))
	assert.Equal(t, "https://data.austintexas.gov/api/views/abcd-1234", EndpointURL(DefaultSite, "abcd-1234"))
	assert.Equal(t, "https://example.org/api/views/a%2Fb", EndpointURL("example.org", "a/b"))
}

func TestDefaultClient_Fetch(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status      int
		body        string
		want        Dataset
		wantRetrErr bool
		wantMissing string
		wantErr     bool
	}{
		"ok/ name and rowsUpdatedAt are extracted": {
			status: http.StatusOK,
			body:   `{"id": "abcd-1234", "name": "Streets", "rowsUpdatedAt": 1717200000, "columns": []}`,
			want:   Dataset{ID: "abcd-1234", Name: "Streets", LastUpdatedAt: time.Unix(1717200000, 0)},
		},
		"ok/ escaped names are decoded": {
			status: http.StatusOK,
			body:   `{"name": "Trees & Parks", "rowsUpdatedAt": 1717200000}`,
			want:   Dataset{ID: "abcd-1234", Name: "Trees & Parks", LastUpdatedAt: time.Unix(1717200000, 0)},
		},
		"ok/ fractional timestamps keep sub-second precision": {
			status: http.StatusOK,
			body:   `{"name": "Streets", "rowsUpdatedAt": 1717200000.5}`,
			want:   Dataset{ID: "abcd-1234", Name: "Streets", LastUpdatedAt: time.Unix(1717200000, 500000000)},
		},
		"ng/ empty object": {
			status:      http.StatusOK,
			body:        `{}`,
			wantRetrErr: true,
		},
		"ng/ empty body": {
			status:      http.StatusOK,
			body:        "  \n",
			wantRetrErr: true,
		},
		"ng/ not json": {
			status:      http.StatusOK,
			body:        `<html>oops</html>`,
			wantRetrErr: true,
		},
		"ng/ json array": {
			status:      http.StatusOK,
			body:        `[{"name": "Streets"}]`,
			wantRetrErr: true,
		},
		"ng/ server error": {
			status:      http.StatusInternalServerError,
			body:        `{"name": "Streets", "rowsUpdatedAt": 1717200000}`,
			wantRetrErr: true,
		},
		"ng/ missing name": {
			status:      http.StatusOK,
			body:        `{"rowsUpdatedAt": 1717200000}`,
			wantMissing: "name",
		},
		"ng/ missing rowsUpdatedAt": {
			status:      http.StatusOK,
			body:        `{"name": "Streets"}`,
			wantMissing: "rowsUpdatedAt",
		},
		"ng/ null rowsUpdatedAt": {
			status:      http.StatusOK,
			body:        `{"name": "Streets", "rowsUpdatedAt": null}`,
			wantMissing: "rowsUpdatedAt",
		},
		"ng/ rowsUpdatedAt out of range": {
			status:      http.StatusOK,
			body:        `{"name": "Streets", "rowsUpdatedAt": 1e300}`,
			wantRetrErr: true,
		},
		"ng/ rowsUpdatedAt below range": {
			status:      http.StatusOK,
			body:        `{"name": "Streets", "rowsUpdatedAt": -1e19}`,
			wantRetrErr: true,
		},
		"ng/ rowsUpdatedAt is a string": {
			status:  http.StatusOK,
			body:    `{"name": "Streets", "rowsUpdatedAt": "yesterday"}`,
			wantErr: true,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// --- given ---
			var gotURL string
			c := NewClientWithHTTPClient(DefaultSite, NewMockClient(t, tt.status, tt.body, &gotURL))

			// --- when ---
			got, err := c.Fetch(context.Background(), "abcd-1234")

			// --- then ---
			assert.Equal(t, "https://data.austintexas.gov/api/views/abcd-1234", gotURL)
			switch {
			case tt.wantRetrErr:
				var retrErr *RetrievalError
				require.ErrorAs(t, err, &retrErr)
				assert.Contains(t, err.Error(), "metadata retrieval failed")
			case tt.wantMissing != "":
				var missing *MissingFieldError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, tt.wantMissing, missing.Field)
				assert.Contains(t, err.Error(), tt.wantMissing)
			case tt.wantErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want.ID, got.ID)
				assert.Equal(t, tt.want.Name, got.Name)
				assert.True(t, tt.want.LastUpdatedAt.Equal(got.LastUpdatedAt),
					"got %v, want %v", got.LastUpdatedAt, tt.want.LastUpdatedAt)
			}
		})
	}
}

func TestDefaultClient_Fetch_TransportError(t *testing.T) {
	t.Parallel()

	hc := &http.Client{
		Transport: RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}),
	}
	c := NewClientWithHTTPClient(DefaultSite, hc)

	_, err := c.Fetch(context.Background(), "abcd-1234")

	var retrErr *RetrievalError
	require.ErrorAs(t, err, &retrErr)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMissingFieldError_Message(t *testing.T) {
	t.Parallel()

	err := &MissingFieldError{Field: "rowsUpdatedAt"}
	assert.Equal(t, `metadata missing or incomplete (no "rowsUpdatedAt" value)`, err.Error())
}
