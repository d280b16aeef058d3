package jobtread

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ruff-uno/simonini-isms/internal/specdoc"
)

// maxPageSize is the largest page Pave returns.
const maxPageSize = 100

var (
	accountFields  = Fields("id", "name", "type", "isTaxable", "createdAt")
	fileFields     = Fields("id", "name", "url", "size", "type", "createdAt")
	jobFields      = Fields("id", "name", "number", "description", "priceType", "closedOn", "createdAt")
	locationFields = Fields("id", "name", "address").With(Query{
		"account": Fields("id", "name", "type"),
	})
	customFieldValueFields = Fields("id", "value").With(Query{
		"customField": Fields("id", "name"),
	})
)

func (c *Client) organizationNode(selection Query) Query {
	return Query{"organization": selection.With(Query{"$": Query{"id": c.organizationID}})}
}

// OrganizationInfo returns the configured organization.
func (c *Client) OrganizationInfo(ctx context.Context) (*Organization, error) {
	var resp struct {
		Organization Organization `json:"organization"`
	}
	q := c.organizationNode(Fields("id", "name", "currencyCode", "timeZone"))
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	return &resp.Organization, nil
}

// ListJobs returns a page of jobs. An empty page token starts at the first
// page.
func (c *Client) ListJobs(ctx context.Context, limit int, page string) (*Connection[Job], error) {
	args := Query{"size": limit}
	if page != "" {
		args["page"] = page
	}
	q := c.organizationNode(Query{
		"jobs": Query{
			"$": args,
			"nodes": jobFields.With(Query{
				"customFieldValues": Query{"nodes": customFieldValueFields},
				"location":          locationFields,
			}),
			"nextPage":     Query{},
			"previousPage": Query{},
		},
	})

	var resp struct {
		Organization struct {
			Jobs Connection[Job] `json:"jobs"`
		} `json:"organization"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	return &resp.Organization.Jobs, nil
}

// Job returns a job with its custom field values and location.
func (c *Client) Job(ctx context.Context, jobID string) (*Job, error) {
	q := Query{
		"job": jobFields.With(Query{
			"$": Query{"id": jobID},
			"customFieldValues": Query{
				"$":     Query{"size": 25},
				"nodes": customFieldValueFields,
			},
			"location": locationFields,
		}),
	}

	var resp struct {
		Job Job `json:"job"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// NewJob describes a job to create. Empty optional fields are omitted.
type NewJob struct {
	Name         string
	LocationID   string
	Number       string
	Description  string
	CustomFields map[string]any
}

// CreateJob creates a job and returns it.
func (c *Client) CreateJob(ctx context.Context, nj NewJob) (*Job, error) {
	args := Query{"name": nj.Name}
	if nj.LocationID != "" {
		args["locationId"] = nj.LocationID
	}
	if nj.Number != "" {
		args["number"] = nj.Number
	}
	if nj.Description != "" {
		args["description"] = nj.Description
	}
	if len(nj.CustomFields) > 0 {
		args["customFieldValues"] = nj.CustomFields
	}

	q := Query{
		"createJob": Query{
			"$":          args,
			"createdJob": Fields("id", "name", "number", "description", "createdAt"),
		},
	}
	var resp struct {
		CreateJob struct {
			CreatedJob Job `json:"createdJob"`
		} `json:"createJob"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	return &resp.CreateJob.CreatedJob, nil
}

// ListAccounts returns customers and vendors. A non-empty accountType
// ("customer" or "vendor") is filtered after fetching, so twice the limit is
// requested (capped at one page) and the result truncated to limit.
func (c *Client) ListAccounts(ctx context.Context, accountType string, limit int) (*Connection[Account], error) {
	fetch := limit
	if accountType != "" {
		fetch = limit * 2
	}
	fetch = min(fetch, maxPageSize)

	q := c.organizationNode(Query{
		"accounts": Query{
			"$":        Query{"size": fetch},
			"nodes":    accountFields,
			"nextPage": Query{},
		},
	})
	var resp struct {
		Organization struct {
			Accounts Connection[Account] `json:"accounts"`
		} `json:"organization"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}

	accounts := &resp.Organization.Accounts
	if accountType != "" && len(accounts.Nodes) > 0 {
		filtered := make([]Account, 0, len(accounts.Nodes))
		for _, a := range accounts.Nodes {
			if a.Type == accountType {
				filtered = append(filtered, a)
			}
		}
		if len(filtered) > limit {
			filtered = filtered[:limit]
		}
		accounts.Nodes = filtered
	}
	return accounts, nil
}

// NewAccount describes a customer or vendor to create.
type NewAccount struct {
	Name         string
	Type         string
	IsTaxable    bool
	CustomFields map[string]any
}

// CreateAccount creates an account in the configured organization.
func (c *Client) CreateAccount(ctx context.Context, na NewAccount) (*Account, error) {
	args := Query{
		"organizationId": c.organizationID,
		"name":           na.Name,
		"type":           na.Type,
		"isTaxable":      na.IsTaxable,
	}
	if len(na.CustomFields) > 0 {
		args["customFieldValues"] = na.CustomFields
	}

	q := Query{
		"createAccount": Query{
			"$":              args,
			"createdAccount": accountFields,
		},
	}
	var resp struct {
		CreateAccount struct {
			CreatedAccount Account `json:"createdAccount"`
		} `json:"createAccount"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	return &resp.CreateAccount.CreatedAccount, nil
}

// CreateLocation adds a site address to an account.
func (c *Client) CreateLocation(ctx context.Context, accountID, name, address string) (*Location, error) {
	q := Query{
		"createLocation": Query{
			"$": Query{
				"accountId": accountID,
				"name":      name,
				"address":   address,
			},
			"createdLocation": Fields("id", "name", "address").With(Query{
				"account": Fields("id", "name"),
			}),
		},
	}
	var resp struct {
		CreateLocation struct {
			CreatedLocation Location `json:"createdLocation"`
		} `json:"createLocation"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	return &resp.CreateLocation.CreatedLocation, nil
}

// ListCostCodes returns a page of cost codes.
func (c *Client) ListCostCodes(ctx context.Context, limit int) (*Connection[CostCode], error) {
	q := c.organizationNode(Query{
		"costCodes": Query{
			"$":        Query{"size": limit},
			"nodes":    Fields("id", "name", "number", "isActive"),
			"nextPage": Query{},
		},
	})
	var resp struct {
		Organization struct {
			CostCodes Connection[CostCode] `json:"costCodes"`
		} `json:"organization"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	return &resp.Organization.CostCodes, nil
}

// JobFiles returns up to limit files attached to a job (at most one page).
func (c *Client) JobFiles(ctx context.Context, jobID string, limit int) ([]File, error) {
	q := Query{
		"job": Fields("id", "name", "number").With(Query{
			"$": Query{"id": jobID},
			"files": Query{
				"$":        Query{"size": min(limit, maxPageSize)},
				"nodes":    fileFields,
				"nextPage": Query{},
			},
		}),
	}
	var resp struct {
		Job Job `json:"job"`
	}
	if err := c.Do(ctx, q, &resp); err != nil {
		return nil, err
	}
	if resp.Job.Files == nil || resp.Job.Files.Nodes == nil {
		return []File{}, nil
	}
	return resp.Job.Files.Nodes, nil
}

// PhaseSpecFiles returns the PDF files of a job ordered by the phase number
// in their names; files without a phase number come last.
func (c *Client) PhaseSpecFiles(ctx context.Context, jobID string) ([]File, error) {
	files, err := c.JobFiles(ctx, jobID, maxPageSize)
	if err != nil {
		return nil, err
	}

	pdfs := make([]File, 0, len(files))
	for _, f := range files {
		if IsPDF(f) {
			pdfs = append(pdfs, f)
		}
	}
	slices.SortStableFunc(pdfs, func(a, b File) int {
		return specdoc.ComparePhaseFiles(a.Name, b.Name)
	})
	return pdfs, nil
}

// IsPDF reports whether a file is a PDF by MIME type or extension.
func IsPDF(f File) bool {
	return f.Type == "application/pdf" || strings.HasSuffix(strings.ToLower(f.Name), ".pdf")
}

// TestConnection fetches the organization to verify the key and
// organization id.
func (c *Client) TestConnection(ctx context.Context) (*Organization, error) {
	org, err := c.OrganizationInfo(ctx)
	if err != nil {
		c.logger.Error("connection failed", zap.Error(err))
		return nil, err
	}
	if org.ID == "" {
		return nil, fmt.Errorf("jobtread: organization %q not found", c.organizationID)
	}
	c.logger.Info("connection successful", zap.String("organization", org.Name))
	return org, nil
}

// Download fetches a file's content from its signed URL.
func (c *Client) Download(ctx context.Context, f File) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("jobtread: creating download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jobtread: downloading %s: %w", f.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("download of %s failed", f.Name)}
	}
	data, err := readAllLimit(resp.Body, maxDownloadBytes)
	if err != nil {
		return nil, fmt.Errorf("jobtread: reading %s: %w", f.Name, err)
	}
	return data, nil
}

// IsNotFound reports whether err is an HTTP 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
