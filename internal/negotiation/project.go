package negotiation

import (
	"context"
	"fmt"

	"helplink/internal/apperr"
	"helplink/internal/entity"
	"helplink/internal/state"
)

// StartProjectFromMessage creates a planning project seeded with the
// requester's first advisory message.
func (s *Service) StartProjectFromMessage(ctx context.Context, text string) (entity.Project, error) {
	if text == "" {
		return entity.Project{}, fmt.Errorf("start project: empty message: %w", apperr.ErrMalformedData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.newProjectLocked(text)
	p.AdvisoryThread = append(p.AdvisoryThread, entity.Message{
		ID:   entity.NewID("msg"),
		Role: entity.MessageUser,
		Text: text,
	})
	return p, s.insertProjectLocked(ctx, p)
}

// StartProjectFromMedia creates a planning project around an uploaded item.
func (s *Service) StartProjectFromMedia(ctx context.Context, item entity.MediaItem) (entity.Project, error) {
	if item.URL == "" {
		return entity.Project{}, fmt.Errorf("start project: media without url: %w", apperr.ErrMalformedData)
	}
	if item.ID == "" {
		item.ID = entity.NewID("media")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	title := item.Name
	if title == "" {
		title = "Uploaded media"
	}
	p := s.newProjectLocked(title)
	p.Media = append(p.Media, item)
	return p, s.insertProjectLocked(ctx, p)
}

func (s *Service) newProjectLocked(summary string) entity.Project {
	return entity.Project{
		ID:             entity.NewID("proj"),
		Title:          truncateTitle(summary),
		Status:         entity.ProjectPlanning,
		Summary:        summary,
		UpdatedAt:      s.now(),
		AdvisoryThread: []entity.Message{},
		ExpertThread:   []entity.Message{},
		Media:          []entity.MediaItem{},
		Milestones:     []entity.Milestone{},
	}
}

func (s *Service) insertProjectLocked(ctx context.Context, p entity.Project) error {
	next := append([]entity.Project{p}, s.store.Projects()...)
	s.store.ReplaceProjects(next)
	s.persist(ctx, state.KeyProjects, next)
	return nil
}

// AppendMessage adds a message to one of the project's two threads.
func (s *Service) AppendMessage(ctx context.Context, projectID string, thread Thread, msg entity.Message) error {
	if msg.ID == "" {
		msg.ID = entity.NewID("msg")
	}
	return s.updateProject(ctx, projectID, func(p *entity.Project) error {
		switch thread {
		case ThreadAdvisory:
			p.AdvisoryThread = append(p.AdvisoryThread, msg)
		case ThreadExpert:
			p.ExpertThread = append(p.ExpertThread, msg)
		default:
			return fmt.Errorf("unknown thread %q: %w", thread, apperr.ErrMalformedData)
		}
		return nil
	})
}

// ResolveProject completes an in-progress project. promptReview is true when
// the finishing actor is the requester and an expert was assigned, meaning the
// caller should solicit a review.
func (s *Service) ResolveProject(ctx context.Context, projectID string) (promptReview bool, err error) {
	err = s.updateProject(ctx, projectID, func(p *entity.Project) error {
		if p.Status != entity.ProjectInProgress {
			return fmt.Errorf("resolve: project is %s: %w", p.Status, apperr.ErrInvalidTransition)
		}
		p.Status = entity.ProjectCompleted
		promptReview = s.actor.Role == entity.RoleRequester && p.AssignedExpertID != ""
		return nil
	})
	return promptReview, err
}

// ReconnectExpert re-opens a completed project with its retained expert.
func (s *Service) ReconnectExpert(ctx context.Context, projectID string) error {
	return s.updateProject(ctx, projectID, func(p *entity.Project) error {
		if p.Status != entity.ProjectCompleted {
			return fmt.Errorf("reconnect: project is %s: %w", p.Status, apperr.ErrInvalidTransition)
		}
		if p.AssignedExpertID == "" {
			return fmt.Errorf("reconnect: no retained expert: %w", apperr.ErrNotFound)
		}
		p.Status = entity.ProjectInProgress
		p.ExpertThread = append(p.ExpertThread,
			s.systemMessage(fmt.Sprintf("Reconnected with %s. The conversation continues where it left off.", p.AssignedExpertName)))
		return nil
	})
}

// FindNewExpert re-opens a completed project without its previous expert.
// The project goes back to planning and the assignment is cleared so a fresh
// broadcast can be attached to it.
func (s *Service) FindNewExpert(ctx context.Context, projectID string) error {
	return s.updateProject(ctx, projectID, func(p *entity.Project) error {
		if p.Status != entity.ProjectCompleted {
			return fmt.Errorf("find new expert: project is %s: %w", p.Status, apperr.ErrInvalidTransition)
		}
		prev := p.AssignedExpertName
		p.Status = entity.ProjectPlanning
		p.AssignedExpertID = ""
		p.AssignedExpertName = ""
		if prev != "" {
			p.ExpertThread = append(p.ExpertThread,
				s.systemMessage(fmt.Sprintf("Search restarted. %s is no longer attached to this project.", prev)))
		}
		return nil
	})
}

// AttachInvoice sets the project's invoice. Responder command.
func (s *Service) AttachInvoice(ctx context.Context, projectID string, inv entity.Invoice) error {
	if s.actor.Role != entity.RoleResponder {
		return fmt.Errorf("attach invoice: %w", apperr.ErrInvalidTransition)
	}
	if inv.ID == "" {
		inv.ID = entity.NewID("inv")
	}
	if inv.Status == "" {
		inv.Status = entity.InvoicePending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	return s.updateProject(ctx, projectID, func(p *entity.Project) error {
		if p.AssignedExpertID != s.actor.ExpertID {
			return fmt.Errorf("attach invoice: not assigned to %s: %w", projectID, apperr.ErrInvalidTransition)
		}
		p.Invoice = &inv
		p.ExpertThread = append(p.ExpertThread,
			s.systemMessage(fmt.Sprintf("%s sent an invoice for $%.2f.", s.actor.Name, inv.Amount)))
		return nil
	})
}

// MarkInvoicePaid settles a pending invoice. Requester command.
func (s *Service) MarkInvoicePaid(ctx context.Context, projectID string) error {
	if s.actor.Role != entity.RoleRequester {
		return fmt.Errorf("pay invoice: %w", apperr.ErrInvalidTransition)
	}
	return s.updateProject(ctx, projectID, func(p *entity.Project) error {
		if p.Invoice == nil {
			return fmt.Errorf("pay invoice: none attached: %w", apperr.ErrNotFound)
		}
		if p.Invoice.Status == entity.InvoicePaid {
			return nil
		}
		inv := *p.Invoice
		inv.Status = entity.InvoicePaid
		p.Invoice = &inv
		p.ExpertThread = append(p.ExpertThread,
			s.systemMessage(fmt.Sprintf("Invoice for $%.2f was paid.", inv.Amount)))
		return nil
	})
}

// AddMilestone records a summary entry on the project.
func (s *Service) AddMilestone(ctx context.Context, projectID string, m entity.Milestone) error {
	if m.ID == "" {
		m.ID = entity.NewID("ms")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	return s.updateProject(ctx, projectID, func(p *entity.Project) error {
		p.Milestones = append(p.Milestones, m)
		return nil
	})
}

// AttachMedia appends an attachment to the project.
func (s *Service) AttachMedia(ctx context.Context, projectID string, item entity.MediaItem) error {
	if item.ID == "" {
		item.ID = entity.NewID("media")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	return s.updateProject(ctx, projectID, func(p *entity.Project) error {
		p.Media = append(p.Media, item)
		return nil
	})
}

// updateProject applies fn to a deep-enough copy of the project, bumps
// UpdatedAt and persists the collection. The copy means a failed fn leaves
// the store untouched.
func (s *Service) updateProject(ctx context.Context, projectID string, fn func(*entity.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects := s.store.Projects()
	idx := -1
	for i := range projects {
		if projects[i].ID == projectID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("project %s: %w", projectID, apperr.ErrNotFound)
	}

	updated := cloneProject(projects[idx])
	if err := fn(&updated); err != nil {
		return err
	}
	updated.UpdatedAt = s.now()

	next := make([]entity.Project, len(projects))
	copy(next, projects)
	next[idx] = updated

	s.store.ReplaceProjects(next)
	s.persist(ctx, state.KeyProjects, next)
	return nil
}

func cloneProject(p entity.Project) entity.Project {
	out := p
	out.AdvisoryThread = append([]entity.Message{}, p.AdvisoryThread...)
	out.ExpertThread = append([]entity.Message{}, p.ExpertThread...)
	out.Media = append([]entity.MediaItem{}, p.Media...)
	out.Milestones = append([]entity.Milestone{}, p.Milestones...)
	return out
}
