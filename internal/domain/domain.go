package domain

// PageSize is the fixed number of items per task listing page.
const PageSize = 10

// Role strings stored on a user and carried in the token's
// "authorities" claim.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

type User struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	FirstName    string   `json:"firstName,omitempty"`
	LastName     string   `json:"lastName,omitempty"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"-"`
	CreatedAt    string   `json:"createdAt" format:"date"`
}

type TaskStatus struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"createdAt" format:"date"`
}

type Label struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt" format:"date"`
}

type Task struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Index      int     `json:"index"`
	Content    string  `json:"content,omitempty"`
	StatusSlug string  `json:"status"`
	AssigneeID *int64  `json:"assignee_id,omitempty"`
	LabelIDs   []int64 `json:"taskLabelIds,omitempty"`
	CreatedAt  string  `json:"createdAt" format:"date"`
}

// TaskFilter holds the optional task listing criteria. A zero filter
// matches every task.
type TaskFilter struct {
	TitleCont  string `json:"titleCont,omitempty"`
	AssigneeID *int64 `json:"assigneeId,omitempty"`
	Status     string `json:"status,omitempty"`
	LabelID    *int64 `json:"labelId,omitempty"`
}

// HasLabel reports whether the task carries the given label id.
func (t Task) HasLabel(id int64) bool {
	for _, l := range t.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// HasRole reports whether the user holds the given role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
