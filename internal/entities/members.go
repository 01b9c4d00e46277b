package entities

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/sheetloader/internal/auth"
	"github.com/mrlokans/sheetloader/internal/bulkloader"
)

// Class names as stored in the ClassName discriminator column.
const (
	ClassMember         = "Member"
	ClassVerifiedMember = "VerifiedMember"
	ClassCompany        = "Company"
	ClassGroup          = "Group"
	ClassPermission     = "Permission"
)

// PasswordCost is the bcrypt cost used for imported passwords.
var PasswordCost = 10

type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"index;size:255" json:"name"`
	Country   string    `gorm:"size:2" json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Company) TableName() string {
	return "companies"
}

func (c *Company) EntityID() uint { return c.ID }

// Member is the base class of the members table. Subclasses share the
// table and are told apart by ClassName.
type Member struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClassName  string    `gorm:"index;size:100;default:Member" json:"class_name"`
	Email      string    `gorm:"uniqueIndex;size:255" json:"email"`
	FirstName  string    `gorm:"size:100" json:"first_name"`
	Surname    string    `gorm:"size:100" json:"surname"`
	Locale     string    `gorm:"size:10" json:"locale,omitempty"`
	Subscribed bool      `json:"subscribed"`
	Locked     bool      `json:"locked"`
	Password   string    `gorm:"size:255" json:"-"`
	CompanyID  uint      `gorm:"index" json:"company_id,omitempty"`
	Company    Company   `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Groups     []Group   `gorm:"many2many:member_groups;joinForeignKey:MemberID;joinReferences:GroupID" json:"groups,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	groupCache map[string]*Group
}

func (Member) TableName() string {
	return "members"
}

func (m *Member) EntityID() uint { return m.ID }

func (m *Member) BeforeSave(tx *gorm.DB) error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	return nil
}

// CanDelete keeps locked members out of clear-before-import runs.
func (m *Member) CanDelete(context.Context) bool {
	return !m.Locked
}

func (m *Member) UnexportedFields() []string {
	return []string{"Password"}
}

func (m *Member) ImportedFields() []string {
	return []string{"Email", "FirstName", "Surname", "Locale", "Subscribed", "Password", "Groups"}
}

// ImportHooks hashes plain text passwords before they are stored.
func (m *Member) ImportHooks() map[string]bulkloader.ImportHook {
	return map[string]bulkloader.ImportHook{
		"Password": func(_ context.Context, value any, _ *bulkloader.Record) error {
			plain := strings.TrimSpace(toText(value))
			if plain == "" {
				return nil
			}
			hash, err := auth.HashPassword(plain, PasswordCost)
			if err != nil {
				return bulkloader.NewValidationError("password for %s: %v", m.Email, err)
			}
			m.Password = hash
			return nil
		},
	}
}

// DuplicateCallbacks matches members on a normalized email address.
func (m *Member) DuplicateCallbacks() map[string]bulkloader.DuplicateCallback {
	return map[string]bulkloader.DuplicateCallback{
		"normalizedEmail": func(ctx context.Context, store bulkloader.Store, value any, _ *bulkloader.Record) (bulkloader.Entity, error) {
			email := strings.ToLower(strings.TrimSpace(toText(value)))
			if email == "" {
				return nil, nil
			}
			return store.FindOne(ctx, ClassMember, bulkloader.Filter{"Email": email})
		},
	}
}

func (m *Member) ExportMethods() map[string]bulkloader.ExportMethod {
	return map[string]bulkloader.ExportMethod{
		"FullName": func(context.Context, string) (any, error) {
			return strings.TrimSpace(m.FirstName + " " + m.Surname), nil
		},
		"EmailDomain": func(context.Context, string) (any, error) {
			_, domain, _ := strings.Cut(m.Email, "@")
			return domain, nil
		},
		// Created renders CreatedAt with a Go layout, ISO date by default.
		"Created": func(_ context.Context, layout string) (any, error) {
			if layout == "" {
				layout = time.DateOnly
			}
			return m.CreatedAt.Format(layout), nil
		},
	}
}

func (m *Member) SampleImportData() [][]any {
	return [][]any{
		{"Email", "FirstName", "Surname", "Locale", "Subscribed", "Groups"},
		{"jane.doe@example.com", "Jane", "Doe", "en_US", "yes", "editors,reviewers"},
	}
}

// CachedGroup returns a group resolved earlier for this member.
func (m *Member) CachedGroup(code string) (*Group, bool) {
	g, ok := m.groupCache[code]
	return g, ok
}

// CacheGroup remembers a resolved group until the next FlushCache.
func (m *Member) CacheGroup(g *Group) {
	if m.groupCache == nil {
		m.groupCache = make(map[string]*Group)
	}
	m.groupCache[g.Code] = g
}

func (m *Member) FlushCache() {
	m.groupCache = nil
}

// VerifiedMember is a Member whose email address must parse.
type VerifiedMember struct {
	Member
}

func (v *VerifiedMember) BeforeSave(tx *gorm.DB) error {
	if err := v.Member.BeforeSave(tx); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(v.Email); err != nil {
		return bulkloader.NewValidationError("invalid email %q", v.Email)
	}
	return nil
}

type Group struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"uniqueIndex;size:100" json:"code"`
	Title       string       `gorm:"size:255" json:"title"`
	ParentID    uint         `gorm:"index" json:"parent_id,omitempty"`
	Permissions []Permission `gorm:"foreignKey:GroupID" json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

func (g *Group) EntityID() uint { return g.ID }

func (g *Group) ImportedFields() []string {
	return []string{"Code", "Title", "ParentCode", "PermissionCodes"}
}

func (g *Group) SampleImportData() [][]any {
	return [][]any{
		{"Code", "Title", "ParentCode", "PermissionCodes"},
		{"editors", "Editors", "", "CMS_ACCESS,EDIT_CONTENT"},
		{"reviewers", "Reviewers", "editors", "VIEW_DRAFTS"},
	}
}

type Permission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"index;size:100" json:"code"`
	GroupID   uint      `gorm:"index" json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Permission) TableName() string {
	return "permissions"
}

func (p *Permission) EntityID() uint { return p.ID }

func toText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
