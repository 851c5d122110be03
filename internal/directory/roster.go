// Package directory provides a personnel roster loaded from a TOML file.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	goRecover "github.com/MrEthical07/goRecover"
)

// ErrDuplicateEntry is returned when two roster entries share an employee id,
// username or email.
var ErrDuplicateEntry = errors.New("directory: duplicate roster entry")

// Person is one roster entry.
type Person struct {
	EmployeeID      string `toml:"employee_id"`
	Username        string `toml:"username"`
	Email           string `toml:"email"`
	FirstName       string `toml:"first_name"`
	LastName        string `toml:"last_name"`
	DisplayName     string `toml:"display_name"`
	SupervisorEmail string `toml:"supervisor_email"`
	Hidden          bool   `toml:"hidden"`
}

type rosterFile struct {
	People []Person `toml:"people"`
}

type index struct {
	byUsername map[string]Person
	byEmail    map[string]Person
}

// Roster implements goRecover.DirectoryLookup. Lookups are case-insensitive.
type Roster struct {
	path string

	mu  sync.RWMutex
	idx index
}

// NewRoster builds a roster from in-memory entries.
func NewRoster(people []Person) (*Roster, error) {
	idx, err := buildIndex(people)
	if err != nil {
		return nil, err
	}
	return &Roster{idx: idx}, nil
}

// LoadFile reads a roster from a TOML file with a [[people]] array.
func LoadFile(path string) (*Roster, error) {
	r := &Roster{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the backing file. The previous roster stays active when
// the file is invalid.
func (r *Roster) Reload() error {
	if r.path == "" {
		return nil
	}

	var f rosterFile
	if _, err := toml.DecodeFile(r.path, &f); err != nil {
		return fmt.Errorf("directory: decode %s: %w", r.path, err)
	}
	idx, err := buildIndex(f.People)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.idx.byUsername)
}

// FindUser looks up by username when it is set and by email otherwise.
func (r *Roster) FindUser(_ context.Context, username, email string) (goRecover.DirectoryUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		p  Person
		ok bool
	)
	if key := normalize(username); key != "" {
		p, ok = r.idx.byUsername[key]
	} else if key := normalize(email); key != "" {
		p, ok = r.idx.byEmail[key]
	}
	if !ok {
		return goRecover.DirectoryUser{}, goRecover.ErrNotFound
	}
	return goRecover.DirectoryUser(p), nil
}

func buildIndex(people []Person) (index, error) {
	idx := index{
		byUsername: make(map[string]Person, len(people)),
		byEmail:    make(map[string]Person, len(people)),
	}
	employees := make(map[string]struct{}, len(people))

	for i, p := range people {
		if p.EmployeeID == "" || p.Username == "" {
			return index{}, fmt.Errorf("directory: entry %d needs employee_id and username", i)
		}
		if _, dup := employees[p.EmployeeID]; dup {
			return index{}, fmt.Errorf("%w: employee_id %s", ErrDuplicateEntry, p.EmployeeID)
		}
		employees[p.EmployeeID] = struct{}{}

		user := normalize(p.Username)
		if _, dup := idx.byUsername[user]; dup {
			return index{}, fmt.Errorf("%w: username %s", ErrDuplicateEntry, p.Username)
		}
		idx.byUsername[user] = p

		if mail := normalize(p.Email); mail != "" {
			if _, dup := idx.byEmail[mail]; dup {
				return index{}, fmt.Errorf("%w: email %s", ErrDuplicateEntry, p.Email)
			}
			idx.byEmail[mail] = p
		}
	}
	return idx, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
