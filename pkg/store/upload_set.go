package store

import (
	"encoding/hex"
	"net/http"

	"studykit-be/internal/entity"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/blake2b"
)

const DefaultMaxImages = 5

// AddResult reports what an UploadSet.Add call did with its input.
type AddResult struct {
	Added      int  `json:"added"`
	Dropped    int  `json:"dropped"`
	Duplicates int  `json:"duplicates"`
	MaxReached bool `json:"max_reached"`
}

// UploadSet is an ordered, bounded list of page images. Not safe for
// concurrent use; ArtifactStore guards it.
type UploadSet struct {
	items []entity.ImagePayload
	max   int
}

func NewUploadSet(max int) *UploadSet {
	if max <= 0 {
		max = DefaultMaxImages
	}
	return &UploadSet{max: max}
}

// NewImagePayload fingerprints raw image bytes and assigns a public id.
// An empty mime is sniffed from the content.
func NewImagePayload(data []byte, mime string) (entity.ImagePayload, error) {
	id, err := gonanoid.New()
	if err != nil {
		return entity.ImagePayload{}, err
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	sum := blake2b.Sum256(data)
	return entity.ImagePayload{
		Id:       id,
		MIMEType: mime,
		Size:     len(data),
		Digest:   hex.EncodeToString(sum[:]),
		Data:     data,
	}, nil
}

// Add appends images up to capacity. Input past the bound is truncated;
// when the set is already full nothing is added and ErrUploadSetFull is returned.
func (u *UploadSet) Add(images ...entity.ImagePayload) (AddResult, error) {
	if len(u.items) >= u.max {
		return AddResult{Dropped: len(images), MaxReached: true}, ErrUploadSetFull
	}

	var res AddResult
	for _, img := range images {
		if u.contains(img.Digest) {
			res.Duplicates++
			res.Dropped++
			continue
		}
		if len(u.items) >= u.max {
			res.Dropped++
			continue
		}
		u.items = append(u.items, img)
		res.Added++
	}
	res.MaxReached = len(u.items) >= u.max
	return res, nil
}

func (u *UploadSet) contains(digest string) bool {
	if digest == "" {
		return false
	}
	for _, it := range u.items {
		if it.Digest == digest {
			return true
		}
	}
	return false
}

func (u *UploadSet) Remove(id string) error {
	for i, it := range u.items {
		if it.Id == id {
			u.items = append(u.items[:i], u.items[i+1:]...)
			return nil
		}
	}
	return ErrImageNotFound
}

func (u *UploadSet) Clear() { u.items = nil }

func (u *UploadSet) Len() int { return len(u.items) }

func (u *UploadSet) Max() int { return u.max }

// Items returns a copy of the slice; payload bytes are shared and never mutated.
func (u *UploadSet) Items() []entity.ImagePayload {
	return append([]entity.ImagePayload(nil), u.items...)
}
