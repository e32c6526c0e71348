package api

import "time"

// JobResource is one step of a job.
type JobResource struct {
	ResourceID string         `json:"resourceId"`
	Slug       string         `json:"slug,omitempty"`
	Position   int            `json:"position"`
	Params     map[string]any `json:"params,omitempty"`
}

// Job is a user-defined workflow chaining resources.
type Job struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	OwnerID     string        `json:"ownerId,omitempty"`
	Resources   []JobResource `json:"resources,omitempty"`
	Price       string        `json:"price,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// JobInput creates a job when ID is empty and updates it otherwise.
type JobInput struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Resources   []JobResource `json:"resources"`
}

// Resource is a paid API endpoint registered on the platform.
type Resource struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	Category    string         `json:"category,omitempty"`
	Price       string         `json:"price,omitempty"`
	Network     string         `json:"network,omitempty"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	ServerID    string         `json:"serverId,omitempty"`
	OwnerID     string         `json:"ownerId,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// ResourceInput registers a resource.
type ResourceInput struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Slug        string         `json:"slug"`
	Config      map[string]any `json:"config,omitempty"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	Category    string         `json:"category,omitempty"`
	Price       string         `json:"price,omitempty"`
	Network     string         `json:"network,omitempty"`
}

// Server groups the resources one provider hosts.
type Server struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	URL           string `json:"url,omitempty"`
	ResourceCount int    `json:"resourceCount"`
}

// Wallet is a user's balance on one network.
type Wallet struct {
	UserID   string `json:"userId"`
	Address  string `json:"address"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
	Network  string `json:"network,omitempty"`
}

// Stats are the platform totals shown on the landing page.
type Stats struct {
	Jobs      int `json:"jobs"`
	Resources int `json:"resources"`
	Servers   int `json:"servers"`
	Calls     int `json:"calls"`
}

// RewardsStats describe the revenue-share pool.
type RewardsStats struct {
	CurrentPool      string    `json:"currentPool"`
	TotalDistributed string    `json:"totalDistributed"`
	Participants     int       `json:"participants"`
	LastSnapshot     time.Time `json:"lastSnapshot,omitempty"`
}

// RewardClaim is one user's share from one snapshot.
type RewardClaim struct {
	ID        string     `json:"id"`
	Period    string     `json:"period"`
	Amount    string     `json:"amount"`
	Claimed   bool       `json:"claimed"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
}
