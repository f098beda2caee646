// Package entity holds the shared domain model: broadcasts, offers, projects,
// expert profiles, wall content and collections.
//
// JSON field names follow the stored collection shape and must stay
// backward-compatible; payloads written by older clients still parse.
package entity

import "time"

// Urgency of a help broadcast.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// BroadcastStatus is the lifecycle state of a Broadcast.
type BroadcastStatus string

const (
	BroadcastOpen          BroadcastStatus = "open"
	BroadcastOfferReceived BroadcastStatus = "offer_received"
	BroadcastActive        BroadcastStatus = "active"
	BroadcastResolved      BroadcastStatus = "resolved"
)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in-progress"
	ProjectCompleted  ProjectStatus = "completed"
)

// Role distinguishes the two actor kinds sharing the durable layer.
type Role string

const (
	RoleRequester Role = "requester"
	RoleResponder Role = "responder"
)

// ExpertProfile is the displayable profile backing an Offer.
type ExpertProfile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Specialty    string   `json:"specialty"`
	Category     string   `json:"category"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"reviewCount"`
	Location     string   `json:"location"`
	Skills       []string `json:"skills,omitempty"`
	HourlyRate   string   `json:"hourlyRate"`
	Availability string   `json:"availability"`
	Bio          string   `json:"bio,omitempty"`
}

// Offer is a responder's reply to a Broadcast. An Offer always carries the
// full profile snapshot; there is no untyped placeholder variant.
type Offer struct {
	ResponderID   string        `json:"expertId"`
	ResponderName string        `json:"expertName"`
	Profile       ExpertProfile `json:"profile"`
	SubmittedAt   time.Time     `json:"timestamp"`
}

// Broadcast is a requester's open call for expert help. It exclusively owns
// its Offers; an Offer never outlives its Broadcast.
//
// Version is an optimistic-concurrency token: every shared mutation bumps it,
// and approval must present the version it acted on.
type Broadcast struct {
	ID             string          `json:"id"`
	RequesterID    string          `json:"clientId"`
	RequesterName  string          `json:"clientName"`
	ProblemSummary string          `json:"problemSummary"`
	Category       string          `json:"category"`
	Urgency        Urgency         `json:"urgency"`
	CreatedAt      time.Time       `json:"timestamp"`
	Status         BroadcastStatus `json:"status"`
	Offers         []Offer         `json:"offers"`
	Version        int64           `json:"version"`
}

// HasOfferFrom reports whether the responder already has an offer here.
func (b *Broadcast) HasOfferFrom(responderID string) bool {
	for _, o := range b.Offers {
		if o.ResponderID == responderID {
			return true
		}
	}
	return false
}

// OfferFrom returns the responder's offer, if present.
func (b *Broadcast) OfferFrom(responderID string) (Offer, bool) {
	for _, o := range b.Offers {
		if o.ResponderID == responderID {
			return o, true
		}
	}
	return Offer{}, false
}

// Accepting reports whether the broadcast can still take offers.
func (b *Broadcast) Accepting() bool {
	return b.Status == BroadcastOpen || b.Status == BroadcastOfferReceived
}

// MessageRole tags who authored a thread message.
type MessageRole string

const (
	MessageUser   MessageRole = "user"
	MessageModel  MessageRole = "model"
	MessageExpert MessageRole = "expert"
	MessageSystem MessageRole = "system_summary"
)

// Source is a grounding reference attached to an advisory reply.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is a single entry in one of a project's two threads.
type Message struct {
	ID         string      `json:"id"`
	Role       MessageRole `json:"role"`
	ExpertName string      `json:"expertName,omitempty"`
	Text       string      `json:"text"`
	Images     []string    `json:"generatedImages,omitempty"`
	Sources    []Source    `json:"groundingSources,omitempty"`
}

// MediaKind classifies a project attachment.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// MediaItem is a media attachment on a project.
type MediaItem struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Kind      MediaKind `json:"type"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"timestamp"`
}

// InvoiceStatus is the settlement state of an Invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
)

// Invoice is attached to a project by the assigned expert.
// Settlement arithmetic is out of scope; only attach and mark-paid exist here.
type Invoice struct {
	ID          string        `json:"id"`
	Amount      float64       `json:"amount"`
	Kind        string        `json:"type"` // "hourly" or "fixed"
	RateLabel   string        `json:"rateLabel"`
	Description string        `json:"description"`
	Status      InvoiceStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Milestone is a summary produced when an expert conversation session ends.
type Milestone struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"date"`
}

// Project is an assigned collaboration. A completed project keeps its
// assignment so it can be re-opened.
type Project struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Status             ProjectStatus `json:"status"`
	Summary            string        `json:"summary"`
	UpdatedAt          time.Time     `json:"lastUpdated"`
	AssignedExpertID   string        `json:"assignedProId,omitempty"`
	AssignedExpertName string        `json:"assignedProName,omitempty"`
	AdvisoryThread     []Message     `json:"aiMessages"`
	ExpertThread       []Message     `json:"expertMessages"`
	Media              []MediaItem   `json:"media"`
	Milestones         []Milestone   `json:"summaries"`
	Invoice            *Invoice      `json:"invoice,omitempty"`
}

// WallComment is a comment on a wall post.
type WallComment struct {
	ID         string    `json:"id"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"timestamp"`
}

// WallPost is a shared community post.
type WallPost struct {
	ID               string        `json:"id"`
	AuthorName       string        `json:"authorName"`
	Content          string        `json:"content"`
	Image            string        `json:"image,omitempty"`
	Likes            int           `json:"likes"`
	Tags             []string      `json:"tags,omitempty"`
	Comments         []WallComment `json:"comments"`
	CreatedAt        time.Time     `json:"timestamp"`
	LikedByRequester bool          `json:"likedByClient,omitempty"`
	LikedByResponder bool          `json:"likedByExpert,omitempty"`
}

// Collection is a named folder of saved wall post ids.
type Collection struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	PostIDs []string `json:"postIds"`
}

// Session is the per-actor state persisted under a session key.
// It is never shared between actors.
type Session struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Role    Role          `json:"role"`
	Email   string        `json:"email,omitempty"`
	Credits int           `json:"credits"`
	Cards   []SavedCard   `json:"cards,omitempty"`
	Profile ExpertProfile `json:"expertProfile,omitempty"`
}

// SavedCard is a stored payment instrument reference (display fields only).
type SavedCard struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	Expiry   string `json:"expiry"`
	Default  bool   `json:"isDefault"`
	Nickname string `json:"nickname,omitempty"`
}
