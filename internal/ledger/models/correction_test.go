package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

type CorrectionModelSuite struct {
	suite.Suite
}

func TestCorrectionModelSuite(t *testing.T) {
	suite.Run(t, new(CorrectionModelSuite))
}

func validInput() CreateInput {
	return CreateInput{
		TenantID: id.TenantID(uuid.New()),
		Subject:  Subject{Type: "user", ID: "user-7"},
		FieldKey: "dietary_restrictions",
		Value:    json.RawMessage(`{"value":"vegetarian"}`),
		Class:    ClassFact,
		Permissions: Permissions{
			Readers: []string{"assistant-1"},
		},
		Actor:          Actor{Type: "user", ID: "user-7"},
		Origin:         id.Origin{Service: "stet-api", Version: "test"},
		IdempotencyKey: "key-1",
	}
}

func (s *CorrectionModelSuite) TestStatusTransitions() {
	cases := []struct {
		from    CorrectionStatus
		to      CorrectionStatus
		allowed bool
	}{
		{StatusActive, StatusSuperseded, true},
		{StatusActive, StatusRevoked, true},
		{StatusSuperseded, StatusRevoked, true},
		{StatusSuperseded, StatusActive, false},
		{StatusRevoked, StatusActive, false},
		{StatusRevoked, StatusSuperseded, false},
		{StatusRevoked, StatusRevoked, false},
		{StatusActive, StatusActive, false},
	}
	for _, tc := range cases {
		s.Equal(tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func (s *CorrectionModelSuite) TestPermissionsAllows() {
	s.Run("reader membership grants access", func() {
		p := Permissions{Readers: []string{"alice", "bob"}}
		s.True(p.Allows("alice", nil))
		s.False(p.Allows("carol", nil))
	})

	s.Run("scope overlap grants access", func() {
		p := Permissions{Scopes: []string{"support", "billing"}}
		s.True(p.Allows("anyone", []string{"billing"}))
		s.False(p.Allows("anyone", []string{"marketing"}))
		s.False(p.Allows("anyone", nil))
	})

	s.Run("deny wins over reader membership", func() {
		p := Permissions{Readers: []string{"alice"}, DenyList: []string{"alice"}}
		s.False(p.Allows("alice", nil))
	})

	s.Run("deny wins over scope overlap", func() {
		p := Permissions{Scopes: []string{"support"}, DenyList: []string{"mallory"}}
		s.False(p.Allows("mallory", []string{"support"}))
		s.True(p.Allows("eve", []string{"support"}))
	})
}

func (s *CorrectionModelSuite) TestPermissionsValidate() {
	s.Run("requires a reader or a scope", func() {
		err := Permissions{}.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		s.NoError(Permissions{Readers: []string{"a"}}.Validate())
		s.NoError(Permissions{Scopes: []string{"s"}}.Validate())
	})

	s.Run("deny list alone is not enough", func() {
		err := Permissions{DenyList: []string{"mallory"}}.Validate()
		s.Require().Error(err)
	})
}

func (s *CorrectionModelSuite) TestCreateInputValidate() {
	s.Run("accepts well-formed input", func() {
		in := validInput()
		s.NoError(in.Validate())
	})

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"nil tenant", func(in *CreateInput) { in.TenantID = id.TenantID{} }},
		{"empty subject type", func(in *CreateInput) { in.Subject.Type = "" }},
		{"empty subject id", func(in *CreateInput) { in.Subject.ID = "" }},
		{"empty field key", func(in *CreateInput) { in.FieldKey = "" }},
		{"missing value", func(in *CreateInput) { in.Value = nil }},
		{"unknown class", func(in *CreateInput) { in.Class = "EPHEMERAL" }},
		{"empty permissions", func(in *CreateInput) { in.Permissions = Permissions{} }},
		{"empty actor type", func(in *CreateInput) { in.Actor.Type = "" }},
		{"empty actor id", func(in *CreateInput) { in.Actor.ID = "" }},
		{"empty idempotency key", func(in *CreateInput) { in.IdempotencyKey = "" }},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			in := validInput()
			tc.mutate(&in)
			err := in.Validate()
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "want validation error, got %v", err)
		})
	}
}

func (s *CorrectionModelSuite) TestNormalize() {
	in := validInput()
	in.Subject.Type = "  user  "
	in.FieldKey = " dietary_restrictions "
	in.IdempotencyKey = " key-1 "
	in.Permissions.Readers = []string{" alice ", "alice", "", "bob"}

	in.Normalize()

	s.Equal("user", in.Subject.Type)
	s.Equal("dietary_restrictions", in.FieldKey)
	s.Equal("key-1", in.IdempotencyKey)
	s.Equal([]string{"alice", "bob"}, in.Permissions.Readers)
}

func (s *CorrectionModelSuite) TestContentHash() {
	s.Run("identical requests hash identically regardless of idempotency key", func() {
		a := validInput()
		b := validInput()
		b.TenantID = a.TenantID
		b.IdempotencyKey = "a-completely-different-key"

		ha, err := a.ContentHash()
		s.Require().NoError(err)
		hb, err := b.ContentHash()
		s.Require().NoError(err)
		s.Equal(ha, hb)
	})

	s.Run("value key order does not change the hash", func() {
		a := validInput()
		a.Value = json.RawMessage(`{"city":"Lyon","country":"FR"}`)
		b := validInput()
		b.TenantID = a.TenantID
		b.Value = json.RawMessage(`{ "country": "FR", "city": "Lyon" }`)

		ha, err := a.ContentHash()
		s.Require().NoError(err)
		hb, err := b.ContentHash()
		s.Require().NoError(err)
		s.Equal(ha, hb)
	})

	s.Run("different value changes the hash", func() {
		a := validInput()
		b := validInput()
		b.TenantID = a.TenantID
		b.Value = json.RawMessage(`{"value":"vegan"}`)

		ha, err := a.ContentHash()
		s.Require().NoError(err)
		hb, err := b.ContentHash()
		s.Require().NoError(err)
		s.NotEqual(ha, hb)
	})

	s.Run("explicit supersedes target is part of the hash", func() {
		target := id.CorrectionID(uuid.New())
		a := validInput()
		b := validInput()
		b.TenantID = a.TenantID
		b.Supersedes = &target

		ha, err := a.ContentHash()
		s.Require().NoError(err)
		hb, err := b.ContentHash()
		s.Require().NoError(err)
		s.NotEqual(ha, hb)
	})
}

func (s *CorrectionModelSuite) TestNewCorrection() {
	in := validInput()
	prior := id.CorrectionID(uuid.New())
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.FixedZone("CET", 3600))

	c := NewCorrection(id.CorrectionID(uuid.New()), in, &prior, now)

	s.Equal(StatusActive, c.Status)
	s.True(c.IsActive())
	s.Equal(in.TenantID, c.TenantID)
	s.Equal(&prior, c.Supersedes)
	s.Equal(time.UTC, c.CreatedAt.Location())
	s.True(c.CreatedAt.Equal(now))
}

func (s *CorrectionModelSuite) TestRevocation() {
	in := validInput()
	c := NewCorrection(id.CorrectionID(uuid.New()), in, nil, time.Now())

	s.Run("active row can be revoked", func() {
		s.Require().NoError(c.CanRevoke())
		c.ApplyRevocation()
		s.Equal(StatusRevoked, c.Status)
	})

	s.Run("revoking again is a no-op, not an error", func() {
		s.NoError(c.CanRevoke())
	})
}
