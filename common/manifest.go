package common

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const (
	// MaxSymbolLength is the longest symbol the config resource can hold.
	MaxSymbolLength = 10

	// MaxCreators is the maximum number of creators per config resource.
	MaxCreators = 5

	// TotalCreatorShares is the sum every creator list must add up to.
	TotalCreatorShares = 100

	// MaxSellerFeeBasisPoints is 100%.
	MaxSellerFeeBasisPoints = 10000
)

// Creator is one entry of properties.creators.
type Creator struct {
	Address string `json:"address"`
	Share   uint8  `json:"share"`
	Extra   Extra  `json:"-"`
}

// File is one entry of properties.files.
type File struct {
	URI   string `json:"uri"`
	Type  string `json:"type"`
	Extra Extra  `json:"-"`
}

// Attribute values are strings or json.Number.
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
	Extra     Extra       `json:"-"`
}

type Collection struct {
	Name   string `json:"name,omitempty"`
	Family string `json:"family,omitempty"`
	Extra  Extra  `json:"-"`
}

type Properties struct {
	Files    []File    `json:"files"`
	Category string    `json:"category,omitempty"`
	Creators []Creator `json:"creators"`
	Extra    Extra     `json:"-"`
}

// Manifest is the metadata document describing one NFT. Members the types
// do not declare are kept in Extra and survive Encode.
type Manifest struct {
	Name                 string      `json:"name"`
	Symbol               string      `json:"symbol"`
	Description          string      `json:"description,omitempty"`
	SellerFeeBasisPoints uint16      `json:"seller_fee_basis_points"`
	Image                string      `json:"image"`
	AnimationURL         string      `json:"animation_url,omitempty"`
	ExternalURL          string      `json:"external_url,omitempty"`
	Attributes           []Attribute `json:"attributes,omitempty"`
	Collection           *Collection `json:"collection,omitempty"`
	Properties           Properties  `json:"properties"`
	Extra                Extra       `json:"-"`
}

// Plain copies of the types above, without the JSON methods.
type (
	creator    Creator
	file       File
	attribute  Attribute
	collection Collection
	properties Properties
	manifest   Manifest
)

func (c *Creator) UnmarshalJSON(data []byte) error {
	return decodeWithExtra(data, (*creator)(c), &c.Extra)
}

func (c Creator) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(creator(c), c.Extra)
}

func (f *File) UnmarshalJSON(data []byte) error {
	return decodeWithExtra(data, (*file)(f), &f.Extra)
}

func (f File) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(file(f), f.Extra)
}

func (a *Attribute) UnmarshalJSON(data []byte) error {
	return decodeWithExtra(data, (*attribute)(a), &a.Extra)
}

func (a Attribute) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(attribute(a), a.Extra)
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	return decodeWithExtra(data, (*collection)(c), &c.Extra)
}

func (c Collection) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(collection(c), c.Extra)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	return decodeWithExtra(data, (*properties)(p), &p.Extra)
}

func (p Properties) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(properties(p), p.Extra)
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	return decodeWithExtra(data, (*manifest)(m), &m.Extra)
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(manifest(m), m.Extra)
}

// ValidationError reports a manifest or campaign field that cannot be used.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ReadManifest decodes a manifest document.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads a manifest document from disk.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadManifest(f)
}

// Validate checks the fields the launcher reads before any of them is used.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return invalid("name", "empty")
	}
	if m.Symbol == "" {
		return invalid("symbol", "empty")
	}
	if len(m.Symbol) > MaxSymbolLength {
		return invalid("symbol", "%q is longer than %d bytes", m.Symbol, MaxSymbolLength)
	}
	if m.SellerFeeBasisPoints > MaxSellerFeeBasisPoints {
		return invalid("seller_fee_basis_points", "%d exceeds %d", m.SellerFeeBasisPoints, MaxSellerFeeBasisPoints)
	}
	creators := m.Properties.Creators
	if len(creators) == 0 {
		return invalid("properties.creators", "empty")
	}
	if len(creators) > MaxCreators {
		return invalid("properties.creators", "%d creators, at most %d allowed", len(creators), MaxCreators)
	}
	total := 0
	for i, c := range creators {
		if _, err := SolanaAddressFromString(c.Address); err != nil {
			return invalid(fmt.Sprintf("properties.creators[%d].address", i), "%q is not a solana address", c.Address)
		}
		total += int(c.Share)
	}
	if total != TotalCreatorShares {
		return invalid("properties.creators", "shares add up to %d, want %d", total, TotalCreatorShares)
	}
	if len(m.Properties.Files) == 0 {
		return invalid("properties.files", "empty")
	}
	return nil
}

// ApplyImage points the manifest at an uploaded image.
func (m *Manifest) ApplyImage(uri, contentType string) error {
	if len(m.Properties.Files) == 0 {
		return invalid("properties.files", "empty")
	}
	m.Image = uri
	m.Properties.Files[0].URI = uri
	m.Properties.Files[0].Type = contentType
	return nil
}

// Encode serializes the manifest. HTML escaping is disabled so URIs are
// written exactly as the storage network returned them.
func (m *Manifest) Encode() ([]byte, error) {
	return encodeJSON(m)
}
