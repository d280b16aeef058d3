package jobtread

// Connection is a page of nodes with cursors for the neighbouring pages.
type Connection[T any] struct {
	Nodes        []T     `json:"nodes"`
	NextPage     *string `json:"nextPage,omitempty"`
	PreviousPage *string `json:"previousPage,omitempty"`
}

// Organization is the account that owns jobs, accounts and files.
type Organization struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currencyCode"`
	TimeZone     string `json:"timeZone"`
}

// Account is a customer or vendor.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsTaxable bool   `json:"isTaxable"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Location is a site address belonging to an account.
type Location struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Account *Account `json:"account,omitempty"`
}

// CustomField identifies a custom field definition.
type CustomField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CustomFieldValue is a value set on a job, such as its job type.
type CustomFieldValue struct {
	ID          string      `json:"id"`
	Value       any         `json:"value"`
	CustomField CustomField `json:"customField"`
}

// Job is a JobTread job.
type Job struct {
	ID                string                        `json:"id"`
	Name              string                        `json:"name"`
	Number            string                        `json:"number"`
	Description       string                        `json:"description"`
	PriceType         string                        `json:"priceType,omitempty"`
	ClosedOn          *string                       `json:"closedOn,omitempty"`
	CreatedAt         string                        `json:"createdAt"`
	CustomFieldValues *Connection[CustomFieldValue] `json:"customFieldValues,omitempty"`
	Location          *Location                     `json:"location,omitempty"`
	Files             *Connection[File]             `json:"files,omitempty"`
}

// CostCode is a budget category.
type CostCode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Number   string `json:"number"`
	IsActive bool   `json:"isActive"`
}

// File is a document attached to a job.
type File struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
}
