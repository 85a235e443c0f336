package validators

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"
)

const jsonValidatorSetPath = "validators.json"

// JSONValidatorSet persists a validator set to a JSON file in a base
// directory.
type JSONValidatorSet struct {
	l    sync.Mutex
	path string
}

// NewJSONValidatorSet ...
func NewJSONValidatorSet(base string) *JSONValidatorSet {
	return &JSONValidatorSet{
		path: filepath.Join(base, jsonValidatorSetPath),
	}
}

// Path returns the location of the JSON file.
func (j *JSONValidatorSet) Path() string {
	return j.path
}

// ValidatorSet parses the underlying JSON file. Missing roles default to
// authority and missing weights to 1, so that a plain list of keys and
// addresses is a valid file.
func (j *JSONValidatorSet) ValidatorSet() (*ValidatorSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	var entries []struct {
		PubKeyHex string
		NetAddr   string
		Moniker   string
		Role      Role
		Weight    *uint64
	}
	if err := json.NewDecoder(bytes.NewReader(buf)).Decode(&entries); err != nil {
		return nil, err
	}

	vals := make([]*Validator, 0, len(entries))
	for _, e := range entries {
		v := NewValidator(e.PubKeyHex, e.NetAddr, e.Moniker)
		if e.Role != "" {
			v.Role = e.Role
		}
		if e.Weight != nil {
			v.Weight = *e.Weight
		}
		vals = append(vals, v)
	}

	return NewValidatorSet(vals), nil
}

// Write persists the validators to the JSON file.
func (j *JSONValidatorSet) Write(vals []*Validator) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vals); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}
