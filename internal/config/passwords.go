/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// Service/key prefix for the OS keyring. Document passwords never touch the
// YAML file on disk.
const (
	keyringService   = "PDFViewer"
	keyringKeyPrefix = "doc_password_"
)

// ErrNoPassword is returned when no password is stored for a document.
var ErrNoPassword = errors.New("config: no stored password")

// PasswordStore abstracts the keyring, so tests can stub it.
type PasswordStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var passwordStore PasswordStore = &osKeyring{}

// osKeyring implements PasswordStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) {
	return keyring.Get(service, key)
}
func (k *osKeyring) Set(service, key, value string) error {
	return keyring.Set(service, key, value)
}
func (k *osKeyring) Delete(service, key string) error {
	return keyring.Delete(service, key)
}

// DocumentPassword returns the stored password for a document id.
func DocumentPassword(docID string) (string, error) {
	v, err := passwordStore.Get(keyringService, keyringKeyPrefix+docID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoPassword
		}
		return "", err
	}
	if v == "" {
		return "", ErrNoPassword
	}
	return v, nil
}

// SetDocumentPassword stores a password for a document id.
func SetDocumentPassword(docID, password string) error {
	return passwordStore.Set(keyringService, keyringKeyPrefix+docID, password)
}

// DeleteDocumentPassword removes a stored password. Missing entries are not
// an error.
func DeleteDocumentPassword(docID string) error {
	err := passwordStore.Delete(keyringService, keyringKeyPrefix+docID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
