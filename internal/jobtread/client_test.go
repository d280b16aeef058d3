package jobtread

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paveServer records decoded queries and answers with the JSON produced by
// respond.
type paveServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []map[string]any
}

func (ps *paveServer) query(i int) map[string]any {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.queries[i]
}

func (ps *paveServer) count() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.queries)
}

func newPaveServer(t *testing.T, respond func(q map[string]any) (int, any)) *paveServer {
	t.Helper()
	ps := &paveServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var payload struct {
			Query map[string]any `json:"query"`
		}
		assert.NoError(t, json.Unmarshal(body, &payload))
		ps.mu.Lock()
		ps.queries = append(ps.queries, payload.Query)
		ps.mu.Unlock()

		status, resp := respond(payload.Query)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if s, ok := resp.(string); ok {
			io.WriteString(w, s)
			return
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{APIKey: "grant-123", BaseURL: url + "/", OrganizationID: "org-1"})
	require.NoError(t, err)
	return c
}

// dig walks nested query maps.
func dig(q map[string]any, path ...string) any {
	var cur any = q
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNew_DefaultBaseURL(t *testing.T) {
	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestDo_InjectsGrantKey(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{}
	})
	c := newTestClient(t, ps.URL)

	q := Query{"organization": Fields("id")}
	require.NoError(t, c.Do(context.Background(), q, nil))

	require.Equal(t, 1, ps.count())
	assert.Equal(t, "grant-123", dig(ps.query(0), "$", "grantKey"))
	_, mutated := q["$"]
	assert.False(t, mutated, "caller's query must not be modified")
}

func TestDo_KeepsExplicitGrantKey(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{}
	})
	c := newTestClient(t, ps.URL)

	q := Query{"$": Query{"grantKey": "other", "timeZone": "UTC"}}
	require.NoError(t, c.Do(context.Background(), q, nil))

	assert.Equal(t, "other", dig(ps.query(0), "$", "grantKey"))
	assert.Equal(t, "UTC", dig(ps.query(0), "$", "timeZone"))
}

func TestDo_HTTPError(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusUnauthorized, `{"message":"invalid grant key"}`
	})
	c := newTestClient(t, ps.URL)

	err := c.Do(context.Background(), Query{}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid grant key")
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestDo_PaveErrors(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"errors": []string{"unknown field: nope"}}
	})
	c := newTestClient(t, ps.URL)

	err := c.Do(context.Background(), Query{"nope": Query{}}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "unknown field: nope")
}

func TestDo_InvalidJSON(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, "<html>gateway</html>"
	})
	c := newTestClient(t, ps.URL)

	err := c.Do(context.Background(), Query{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing response")
}

func TestOrganizationInfo(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"organization": map[string]any{
				"id": "org-1", "name": "Simonini Builders", "currencyCode": "USD", "timeZone": "America/New_York",
			},
		}
	})
	c := newTestClient(t, ps.URL)

	org, err := c.OrganizationInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Organization{ID: "org-1", Name: "Simonini Builders", CurrencyCode: "USD", TimeZone: "America/New_York"}, org)
	assert.Equal(t, "org-1", dig(ps.query(0), "organization", "$", "id"))
}

func TestListJobs_Pagination(t *testing.T) {
	next := "page-2"
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"organization": map[string]any{
				"jobs": map[string]any{
					"nodes": []map[string]any{
						{"id": "j1", "name": "Smith Residence", "number": "1001",
							"location": map[string]any{"id": "l1", "address": "1 Main St",
								"account": map[string]any{"id": "a1", "name": "Smith", "type": "customer"}}},
					},
					"nextPage": next,
				},
			},
		}
	})
	c := newTestClient(t, ps.URL)

	jobs, err := c.ListJobs(context.Background(), 5, "page-1")
	require.NoError(t, err)
	require.Len(t, jobs.Nodes, 1)
	assert.Equal(t, "Smith Residence", jobs.Nodes[0].Name)
	assert.Equal(t, "Smith", jobs.Nodes[0].Location.Account.Name)
	require.NotNil(t, jobs.NextPage)
	assert.Equal(t, next, *jobs.NextPage)

	assert.EqualValues(t, 5, dig(ps.query(0), "organization", "jobs", "$", "size"))
	assert.Equal(t, "page-1", dig(ps.query(0), "organization", "jobs", "$", "page"))
}

func TestListAccounts_FiltersByType(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"organization": map[string]any{
				"accounts": map[string]any{
					"nodes": []map[string]any{
						{"id": "a1", "name": "Smith", "type": "customer"},
						{"id": "a2", "name": "Acme Lumber", "type": "vendor"},
						{"id": "a3", "name": "Jones", "type": "customer"},
						{"id": "a4", "name": "Lee", "type": "customer"},
					},
				},
			},
		}
	})
	c := newTestClient(t, ps.URL)

	accounts, err := c.ListAccounts(context.Background(), "customer", 2)
	require.NoError(t, err)
	require.Len(t, accounts.Nodes, 2)
	assert.Equal(t, "a1", accounts.Nodes[0].ID)
	assert.Equal(t, "a3", accounts.Nodes[1].ID)
	assert.EqualValues(t, 4, dig(ps.query(0), "organization", "accounts", "$", "size"))

	_, err = c.ListAccounts(context.Background(), "customer", 80)
	require.NoError(t, err)
	assert.EqualValues(t, 100, dig(ps.query(1), "organization", "accounts", "$", "size"))

	_, err = c.ListAccounts(context.Background(), "", 80)
	require.NoError(t, err)
	assert.EqualValues(t, 80, dig(ps.query(2), "organization", "accounts", "$", "size"))
}

func TestCreateJob_OmitsEmptyFields(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"createJob": map[string]any{"createdJob": map[string]any{"id": "j9", "name": "New Build"}},
		}
	})
	c := newTestClient(t, ps.URL)

	job, err := c.CreateJob(context.Background(), NewJob{Name: "New Build", Number: "2001"})
	require.NoError(t, err)
	assert.Equal(t, "j9", job.ID)

	args, ok := dig(ps.query(0), "createJob", "$").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "New Build", "number": "2001"}, args)
}

func TestCreateAccountAndLocation(t *testing.T) {
	ps := newPaveServer(t, func(q map[string]any) (int, any) {
		if _, ok := q["createAccount"]; ok {
			return http.StatusOK, map[string]any{
				"createAccount": map[string]any{"createdAccount": map[string]any{"id": "a7", "name": "Smith", "type": "customer", "isTaxable": true}},
			}
		}
		return http.StatusOK, map[string]any{
			"createLocation": map[string]any{"createdLocation": map[string]any{"id": "l7", "name": "Home", "address": "9 Elm St"}},
		}
	})
	c := newTestClient(t, ps.URL)

	acct, err := c.CreateAccount(context.Background(), NewAccount{Name: "Smith", Type: "customer", IsTaxable: true})
	require.NoError(t, err)
	assert.Equal(t, "a7", acct.ID)
	assert.Equal(t, "org-1", dig(ps.query(0), "createAccount", "$", "organizationId"))
	assert.Equal(t, true, dig(ps.query(0), "createAccount", "$", "isTaxable"))

	loc, err := c.CreateLocation(context.Background(), acct.ID, "Home", "9 Elm St")
	require.NoError(t, err)
	assert.Equal(t, "l7", loc.ID)
	assert.Equal(t, "a7", dig(ps.query(1), "createLocation", "$", "accountId"))
}

func TestListCostCodes(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"organization": map[string]any{
				"costCodes": map[string]any{"nodes": []map[string]any{{"id": "c1", "name": "Framing", "number": "0600", "isActive": true}}},
			},
		}
	})
	c := newTestClient(t, ps.URL)

	codes, err := c.ListCostCodes(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, codes.Nodes, 1)
	assert.Equal(t, "Framing", codes.Nodes[0].Name)
}

func TestPhaseSpecFiles(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"job": map[string]any{
				"id": "job-specs",
				"files": map[string]any{
					"nodes": []map[string]any{
						{"id": "f1", "name": "Warranty.pdf", "type": "application/pdf", "size": 1024},
						{"id": "f2", "name": "Phase 40-100 FRAMING.pdf", "type": "application/pdf", "size": 2048},
						{"id": "f3", "name": "site-photo.jpg", "type": "image/jpeg", "size": 4096},
						{"id": "f4", "name": "Phase 30-500 ALARM SYSTEM.PDF", "type": "application/octet-stream", "size": 512},
					},
				},
			},
		}
	})
	c := newTestClient(t, ps.URL)

	files, err := c.PhaseSpecFiles(context.Background(), "job-specs")
	require.NoError(t, err)

	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	assert.Equal(t, []string{"f4", "f2", "f1"}, ids)
	assert.EqualValues(t, 100, dig(ps.query(0), "job", "files", "$", "size"))
}

func TestJobFiles_NoFiles(t *testing.T) {
	ps := newPaveServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"job": map[string]any{"id": "j1"}}
	})
	c := newTestClient(t, ps.URL)

	files, err := c.JobFiles(context.Background(), "j1", 500)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotNil(t, files)
	assert.EqualValues(t, 100, dig(ps.query(0), "job", "files", "$", "size"))
}

func TestTestConnection(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ps := newPaveServer(t, func(map[string]any) (int, any) {
			return http.StatusOK, map[string]any{"organization": map[string]any{"id": "org-1", "name": "Simonini"}}
		})
		org, err := newTestClient(t, ps.URL).TestConnection(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Simonini", org.Name)
	})

	t.Run("missing organization", func(t *testing.T) {
		ps := newPaveServer(t, func(map[string]any) (int, any) {
			return http.StatusOK, map[string]any{"organization": nil}
		})
		_, err := newTestClient(t, ps.URL).TestConnection(context.Background())
		assert.Error(t, err)
	})

	t.Run("api error", func(t *testing.T) {
		ps := newPaveServer(t, func(map[string]any) (int, any) {
			return http.StatusForbidden, `forbidden`
		})
		_, err := newTestClient(t, ps.URL).TestConnection(context.Background())
		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "%PDF-1.4 fake")
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	data, err := c.Download(context.Background(), File{Name: "a.pdf", URL: srv.URL + "/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))

	_, err = c.Download(context.Background(), File{Name: "missing.pdf", URL: srv.URL + "/missing.pdf"})
	assert.True(t, IsNotFound(err))
}
