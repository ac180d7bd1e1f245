package httpserver_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/cmd/httpserver"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
)

func memoryConfig() configpkg.Config {
	return configpkg.Config{
		StoreKind:            configpkg.StoreMemory,
		TxBaseDelayMillis:    1,
		TxJitterWindowMillis: 1,
		TxMaxDelayMillis:     10,
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func do(t *testing.T, server http.Handler, method, url string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	request, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	var res envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &res))

	return recorder.Code, res
}

func TestNewStore(t *testing.T) {
	_, err := httpserver.NewStore(nil, configpkg.Config{StoreKind: configpkg.StorePostgres})
	require.Error(t, err)

	_, err = httpserver.NewStore(nil, configpkg.Config{StoreKind: "mongo"})
	require.Error(t, err)

	store, err := httpserver.NewStore(nil, memoryConfig())
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestNewExecutorKeepsRegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := httpserver.NewExecutor(zerolog.Nop(), memoryConfig(), reg)
	require.NoError(t, err)

	_, err = httpserver.NewExecutor(zerolog.Nop(), memoryConfig(), reg)
	require.Error(t, err)

	var already prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &already)
}

func TestLedgerAPI(t *testing.T) {
	server, err := httpserver.New(nil, zerolog.Nop(), memoryConfig())
	require.NoError(t, err)

	for _, a := range []map[string]any{
		{"id": 1, "balance": "1000.00"},
		{"id": 2, "balance": "250.00"},
		{"id": 3, "balance": "314159.00"},
	} {
		code, res := do(t, server, http.MethodPost, "/accounts", a)
		require.Equal(t, http.StatusCreated, code, res.Error)
	}

	code, _ := do(t, server, http.MethodPost, "/accounts", map[string]any{"id": 1, "balance": "1"})
	require.Equal(t, http.StatusConflict, code)

	code, res := do(t, server, http.MethodPost, "/transfers", map[string]any{
		"from_account_id": 1,
		"to_account_id":   2,
		"amount":          "100.00",
	})
	require.Equal(t, http.StatusCreated, code, res.Error)

	var created struct {
		Transfer domain.Transfer `json:"transfer"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &created))

	wantTransfer := domain.Transfer{ID: created.Transfer.ID, FromAccountID: 1, ToAccountID: 2}
	if diff := cmp.Diff(wantTransfer, created.Transfer, cmpopts.IgnoreFields(domain.Transfer{}, "Amount", "CreatedAt")); diff != "" {
		t.Errorf("transfer mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "100.00", created.Transfer.Amount.StringFixed(2))

	code, res = do(t, server, http.MethodPost, "/transfers", map[string]any{
		"from_account_id": 2,
		"to_account_id":   1,
		"amount":          "100000.00",
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, domain.ErrInsufficientBalance.Error(), res.Error)

	for id, want := range map[string]string{"1": "900.00", "2": "350.00", "3": "314159.00"} {
		code, res = do(t, server, http.MethodGet, "/accounts/"+id, nil)
		require.Equal(t, http.StatusOK, code)

		var got struct {
			Account domain.Account `json:"account"`
		}
		require.NoError(t, json.Unmarshal(res.Data, &got))
		require.Equal(t, want, got.Account.Balance.StringFixed(2), "account %s", id)
	}

	code, _ = do(t, server, http.MethodGet, "/accounts/9", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, res = do(t, server, http.MethodGet, "/accounts/2/transfers?limit=10", nil)
	require.Equal(t, http.StatusOK, code)

	var list struct {
		Transfers []domain.Transfer `json:"transfers"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &list))
	require.Len(t, list.Transfers, 1)

	request, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	metrics := recorder.Body.String()
	require.True(t, strings.Contains(metrics, `ledger_tx_events_total{outcome="declined",phase="commit"} 1`), metrics)
	require.Contains(t, metrics, "ledger_tx_attempts_total")
}
