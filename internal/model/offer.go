package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Offer is the persistent LNURL-Pay offer record, primary-keyed by
// (Partition, ID), per spec.md §3.
type Offer struct {
	Partition       string     `json:"partition"`
	ID              uuid.UUID  `json:"id"`
	MinSendableMsat int64      `json:"minSendable"`
	MaxSendableMsat int64      `json:"maxSendable"`
	MetadataID      uuid.UUID  `json:"metadataId"`
	Timestamp       time.Time  `json:"timestamp"`
	Expires         *time.Time `json:"expires,omitempty"`
}

func (o Offer) Validate() error {
	if o.Partition == "" {
		return errors.New("partition is required")
	}
	if o.MinSendableMsat < 1 {
		return errors.New("minSendable must be at least 1")
	}
	if o.MinSendableMsat > o.MaxSendableMsat {
		return errors.New("minSendable must not exceed maxSendable")
	}
	if o.Expires != nil && !o.Expires.After(o.Timestamp) {
		return errors.New("expires must be strictly after timestamp")
	}
	return nil
}

// IsExpired reports whether the offer has passed its expiry, if any.
func (o Offer) IsExpired(now time.Time) bool {
	return o.Expires != nil && now.After(*o.Expires)
}

// ImageFormat tags the encoding of OfferMetadata.Image.
type ImageFormat string

const (
	ImagePNG  ImageFormat = "image/png"
	ImageJPEG ImageFormat = "image/jpeg"
)

// Image is an optional metadata image, tagged by format.
type Image struct {
	Format ImageFormat `json:"format"`
	Data   []byte      `json:"data"`
}

// IdentifierKind tags whether OfferMetadata.Identifier is an email
// address (LUD-06 "text/email") or free text ("text/identifier").
type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierText  IdentifierKind = "text"
)

type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

// OfferMetadata is the persistent metadata record, primary-keyed by
// (Partition, ID), per spec.md §3.
type OfferMetadata struct {
	ID         uuid.UUID   `json:"id"`
	Partition  string      `json:"partition"`
	Text       string      `json:"text"`
	LongText   string      `json:"longText,omitempty"`
	Image      *Image      `json:"image,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
}

func (m OfferMetadata) Validate() error {
	if m.Partition == "" {
		return errors.New("partition is required")
	}
	if m.Text == "" {
		return errors.New("text is required")
	}
	if m.Image != nil && m.Image.Format != ImagePNG && m.Image.Format != ImageJPEG {
		return errors.New("image format must be image/png or image/jpeg")
	}
	if m.Identifier != nil && m.Identifier.Kind != IdentifierEmail && m.Identifier.Kind != IdentifierText {
		return errors.New("identifier kind must be email or text")
	}
	return nil
}
