package i18n

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/phishguard/resources"
)

var state = struct {
	sync.Mutex
	translations map[string]map[string]string
	loaded       map[string]bool
}{
	translations: make(map[string]map[string]string),
	loaded:       make(map[string]bool),
}

func load(lang string) {
	raw, err := resources.FS.ReadFile(fmt.Sprintf("i18n/%s.yml", lang))
	if err != nil {
		log.WithError(err).WithField("lang", lang).Debug("no translation catalog")
		return
	}
	translations := make(map[string]string)
	if err := yaml.Unmarshal(raw, &translations); err != nil {
		log.WithError(err).Errorln("cant unmarshal i18n")
		return
	}
	state.translations[lang] = translations
}

// Get returns the translation of key for lang, falling back to the key
// itself. English keys are the source strings.
func Get(key, lang string) string {
	if lang == "" || lang == "en" {
		return key
	}
	state.Lock()
	defer state.Unlock()
	if !state.loaded[lang] {
		load(lang)
		state.loaded[lang] = true
	}
	if res, ok := state.translations[lang][key]; ok {
		return res
	}
	return key
}
