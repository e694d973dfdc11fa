package upload

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

type SignRequest struct {
	Purpose     Purpose `json:"purpose"`
	Filename    string  `json:"filename"`
	ContentType string  `json:"content_type"`
	Size        int64   `json:"size"`
	ContextID   string  `json:"context_id,omitempty"`
}

// Plan 校验通过后的上传计划
type Plan struct {
	Purpose     Purpose
	ObjectKey   string
	Filename    string
	ContentType string
	Kind        Kind
	MaxBytes    int64
}

// Planner 纯函数式的校验与命名，不访问网络
type Planner struct {
	Now   func() time.Time
	NewID func() string
}

func NewPlanner() *Planner {
	return &Planner{Now: time.Now, NewID: uuid.NewString}
}

func (p *Planner) Plan(req SignRequest) (Plan, error) {
	pol, ok := LookupPolicy(req.Purpose)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPurpose, req.Purpose)
	}
	ct := normalizeContentType(req.ContentType)
	kind, ok := pol.ContentTypes[ct]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q is not allowed for %s", ErrInvalidContentType, req.ContentType, req.Purpose)
	}
	if req.Size <= 0 {
		return Plan{}, ErrEmptyFile
	}
	if limit := pol.MaxBytes[kind]; req.Size > limit {
		return Plan{}, &TooLargeError{Purpose: req.Purpose, Kind: kind, Size: req.Size, Limit: limit}
	}
	name := sanitizeFilename(req.Filename)
	if name == "" {
		return Plan{}, ErrFilenameRequired
	}

	var dir string
	if pol.ContextScoped {
		ctxID := sanitizeSegment(req.ContextID)
		if ctxID == "" {
			return Plan{}, fmt.Errorf("%w: %s requires context_id", ErrMissingContext, req.Purpose)
		}
		dir = path.Join(pol.Prefix, ctxID)
	} else {
		now := p.Now().UTC()
		dir = path.Join(pol.Prefix, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))
	}

	return Plan{
		Purpose:     req.Purpose,
		ObjectKey:   path.Join(dir, p.NewID()+"-"+name),
		Filename:    name,
		ContentType: ct,
		Kind:        kind,
		MaxBytes:    pol.MaxBytes[kind],
	}, nil
}

// OwnsKey 判断 objectKey 是否可能由该用途（及 contextId）生成
func OwnsKey(purpose Purpose, contextID string, objectKey string) bool {
	pol, ok := LookupPolicy(purpose)
	if !ok {
		return false
	}
	prefix := pol.Prefix + "/"
	if pol.ContextScoped {
		prefix += sanitizeSegment(contextID) + "/"
	}
	return strings.HasPrefix(objectKey, prefix) && !strings.Contains(objectKey, "..")
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsSpace(r):
			return '-'
		}
		return r
	}, name)
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
		return ""
	}
	return s
}
