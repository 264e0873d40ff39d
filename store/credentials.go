package store

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Region is a fixed byte range of the credential blob.
type Region struct {
	Offset int
	Size   int
}

// Credential blob layout.
var (
	RegionSSID     = Region{Offset: 0, Size: 32}
	RegionPassword = Region{Offset: 32, Size: 64}
	RegionCloudUID = Region{Offset: 96, Size: 32}
)

var (
	ErrFieldTooLong     = errors.New("credential field exceeds region size")
	ErrFieldUnprintable = errors.New("credential field contains a non-printable byte")
)

// Credentials is the Wi-Fi and cloud pairing record.
type Credentials struct {
	SSID     string
	Password string
	CloudUID string
}

// Provisioned reports whether a home network has been stored.
func (c Credentials) Provisioned() bool { return c.SSID != "" }

// field is a fixed-capacity buffer with an explicit length.
type field struct {
	buf [64]byte
	n   int
}

func (f field) String() string { return string(f.buf[:f.n]) }

// decodeField reads printable bytes up to the first byte below 0x20 or the end
// of the region.
func decodeField(raw []byte) field {
	var f field
	for _, c := range raw {
		if c < 32 {
			break
		}
		f.buf[f.n] = c
		f.n++
	}
	return f
}

func checkField(name, v string, r Region) error {
	if len(v) > r.Size {
		return fmt.Errorf("%s: %w (%d > %d)", name, ErrFieldTooLong, len(v), r.Size)
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 32 {
			return fmt.Errorf("%s: %w at %d", name, ErrFieldUnprintable, i)
		}
	}
	return nil
}

// CredentialStore persists Credentials in the fixed-layout blob.
type CredentialStore struct {
	mu   sync.Mutex
	blob *Blob
}

// NewCredentialStore wraps an opened blob.
func NewCredentialStore(blob *Blob) *CredentialStore {
	return &CredentialStore{blob: blob}
}

// OpenCredentialStore opens the blob file at path.
func OpenCredentialStore(path string) (*CredentialStore, error) {
	blob, err := OpenBlob(path)
	if err != nil {
		return nil, err
	}
	return NewCredentialStore(blob), nil
}

// Load never fails; unset fields come back empty.
func (s *CredentialStore) Load() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Credentials{
		SSID:     decodeField(s.blob.Read(RegionSSID.Offset, RegionSSID.Size)).String(),
		Password: decodeField(s.blob.Read(RegionPassword.Offset, RegionPassword.Size)).String(),
		CloudUID: decodeField(s.blob.Read(RegionCloudUID.Offset, RegionCloudUID.Size)).String(),
	}
}

// Save replaces all three fields. Every region is zeroed before the new value
// is written so a shorter value never inherits trailing bytes of an older one.
func (s *CredentialStore) Save(ssid, password, cloudUID string) error {
	if err := checkField("ssid", ssid, RegionSSID); err != nil {
		return err
	}
	if err := checkField("password", password, RegionPassword); err != nil {
		return err
	}
	if err := checkField("uid", cloudUID, RegionCloudUID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	log.Printf("credentials: writing")
	return s.commit(func() {
		s.zeroAll()
		s.blob.Write(RegionSSID.Offset, []byte(ssid))
		s.blob.Write(RegionPassword.Offset, []byte(password))
		s.blob.Write(RegionCloudUID.Offset, []byte(cloudUID))
	})
}

// Clear zeroes all three fields.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Printf("credentials: clearing")
	return s.commit(s.zeroAll)
}

// commit applies stage to the image and persists it. If the commit fails the
// image is rolled back, so Load keeps matching what is on disk.
func (s *CredentialStore) commit(stage func()) error {
	saved := s.blob.data
	stage()
	if err := s.blob.Commit(); err != nil {
		s.blob.data = saved
		return err
	}
	return nil
}

func (s *CredentialStore) zeroAll() {
	for _, r := range []Region{RegionSSID, RegionPassword, RegionCloudUID} {
		s.blob.Zero(r.Offset, r.Size)
	}
}
