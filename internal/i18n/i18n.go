/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package i18n carries the small English/German message catalog used by the
// viewer dialogs and the print worker. It is an explicit service passed to the
// components that need it, not a process-global.
package i18n

import (
	"strings"

	golocale "github.com/jeandeaual/go-locale"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Messages resolves message ids for one locale.
type Messages struct {
	loc *goi18n.Localizer
}

// New builds a catalog for the given BCP 47 locale tag. An empty tag uses the
// system locale, falling back to English.
func New(locale string) *Messages {
	if strings.TrimSpace(locale) == "" {
		if sys, err := golocale.GetLocale(); err == nil {
			locale = sys
		}
	}
	b := goi18n.NewBundle(language.English)
	addMessages(b, language.English, englishMessages)
	addMessages(b, language.German, germanMessages)
	return &Messages{loc: goi18n.NewLocalizer(b, locale, "en")}
}

// T resolves a message id. Unknown ids return the id itself so a missing
// translation never blanks a dialog.
func (m *Messages) T(id string) string {
	s, err := m.loc.Localize(&goi18n.LocalizeConfig{MessageID: id})
	if err != nil || s == "" {
		return id
	}
	return s
}

// Tf resolves a message id with template data.
func (m *Messages) Tf(id string, data map[string]any) string {
	s, err := m.loc.Localize(&goi18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil || s == "" {
		return id
	}
	return s
}

func addMessages(b *goi18n.Bundle, tag language.Tag, msgs map[string]string) {
	for id, other := range msgs {
		// MustAddMessages only panics on empty ids, which the tables never have.
		b.MustAddMessages(tag, &goi18n.Message{ID: id, Other: other})
	}
}

var englishMessages = map[string]string{
	"unsaved.title":        "Unsaved Changes",
	"unsaved.message":      "The document has unsaved annotations. What do you want to do?",
	"unsaved.save":         "Save",
	"unsaved.save_as":      "Save As...",
	"unsaved.discard":      "Discard",
	"unsaved.cancel":       "Cancel",
	"print.dialog.title":   "Print Document",
	"print.preparing":      "Preparing document for printing...",
	"print.progress":       "Printing page {{.Page}} of {{.Total}}...",
	"print.busy":           "A print job is already in progress.",
	"print.failed":         "Printing failed.",
	"print.cancelled":      "Printing was cancelled.",
	"save.dialog.title":    "Save PDF",
	"open.dialog.title":    "Open PDF",
	"error.load_failed":    "The document could not be loaded.",
	"error.not_a_pdf":      "The file is not a PDF document.",
	"error.write_failed":   "The document could not be written.",
	"recovery.in_progress": "The viewer crashed and is being restored...",
	"recovery.lost":        "The viewer crashed and the document could not be restored.",
}

var germanMessages = map[string]string{
	"unsaved.title":        "Ungespeicherte Änderungen",
	"unsaved.message":      "Das Dokument enthält ungespeicherte Anmerkungen. Was möchten Sie tun?",
	"unsaved.save":         "Speichern",
	"unsaved.save_as":      "Speichern unter...",
	"unsaved.discard":      "Verwerfen",
	"unsaved.cancel":       "Abbrechen",
	"print.dialog.title":   "Dokument drucken",
	"print.preparing":      "Dokument wird für den Druck vorbereitet...",
	"print.progress":       "Drucke Seite {{.Page}} von {{.Total}}...",
	"print.busy":           "Es läuft bereits ein Druckauftrag.",
	"print.failed":         "Drucken fehlgeschlagen.",
	"print.cancelled":      "Der Druck wurde abgebrochen.",
	"save.dialog.title":    "PDF speichern",
	"open.dialog.title":    "PDF öffnen",
	"error.load_failed":    "Das Dokument konnte nicht geladen werden.",
	"error.not_a_pdf":      "Die Datei ist kein PDF-Dokument.",
	"error.write_failed":   "Das Dokument konnte nicht geschrieben werden.",
	"recovery.in_progress": "Der Viewer ist abgestürzt und wird wiederhergestellt...",
	"recovery.lost":        "Der Viewer ist abgestürzt und das Dokument konnte nicht wiederhergestellt werden.",
}
