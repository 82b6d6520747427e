package settings

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

const (
	keyAutoJoinConfig = "auto_join_config"
	keyPairingVoice   = "voice"
	keyPairingText    = "text"
)

// fieldFault is a stored field that could not be used. The field keeps its
// default value.
type fieldFault struct {
	field string
	err   error
}

// field returns a pointer to the typed field stored under key, or nil for
// keys GuildSettings does not model.
func (s *GuildSettings) field(key string) any {
	switch key {
	case "auto_join":
		return &s.AutoJoin
	case "max_chars":
		return &s.MaxChars
	case "read_vc_status":
		return &s.ReadVCStatus
	case "read_mention":
		return &s.ReadMention
	case "add_suffix":
		return &s.AddSuffix
	case "read_romaji":
		return &s.ReadRomaji
	case "read_attachments":
		return &s.ReadAttachments
	case "skip_code_blocks":
		return &s.SkipCodeBlocks
	case "skip_urls":
		return &s.SkipURLs
	}
	return nil
}

// parseDocument decodes a stored document over [Defaults] key by key. A key
// that fails to decode or violates its constraint keeps its default and is
// reported as a fault. Unknown keys and pairings that cannot be read are kept
// for [GuildSettings.document]. The error is non-nil only when doc is not a
// JSON object.
func parseDocument(doc []byte) (GuildSettings, []fieldFault, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		return Defaults(), nil, err
	}

	gs := Defaults()
	var faults []fieldFault
	for key, val := range raw {
		if key == keyAutoJoinConfig {
			faults = append(faults, gs.parsePairings(val)...)
			continue
		}
		dst := gs.field(key)
		if dst == nil {
			if gs.extra == nil {
				gs.extra = map[string]json.RawMessage{}
			}
			gs.extra[key] = val
			continue
		}
		if err := json.Unmarshal(val, dst); err != nil {
			faults = append(faults, fieldFault{field: key, err: err})
		}
	}

	if gs.MaxChars < MinMaxChars || gs.MaxChars > MaxMaxChars {
		faults = append(faults, fieldFault{
			field: "max_chars",
			err:   fmt.Errorf("%d is outside %d-%d", gs.MaxChars, MinMaxChars, MaxMaxChars),
		})
		gs.MaxChars = Defaults().MaxChars
	}
	return gs, faults, nil
}

// parsePairings reads the auto_join_config section. Entries without a pair of
// positive channel ids are skipped and kept verbatim.
func (s *GuildSettings) parsePairings(val json.RawMessage) []fieldFault {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(val, &entries); err != nil {
		return []fieldFault{{field: keyAutoJoinConfig, err: err}}
	}

	var faults []fieldFault
	for id, entry := range entries {
		var fields map[string]json.RawMessage
		var p AutoJoinPairing
		err := json.Unmarshal(entry, &fields)
		if err == nil {
			err = json.Unmarshal(entry, &p)
		}
		if err == nil && (strings.TrimSpace(id) == "" || p.VoiceChannelID <= 0 || p.TextChannelID <= 0) {
			err = fmt.Errorf("not a pair of channel ids: %s", entry)
		}
		if err != nil {
			if s.foreignPairings == nil {
				s.foreignPairings = map[string]json.RawMessage{}
			}
			s.foreignPairings[id] = entry
			faults = append(faults, fieldFault{field: keyAutoJoinConfig + "." + id, err: err})
			continue
		}

		s.AutoJoinConfig[id] = p
		delete(fields, keyPairingVoice)
		delete(fields, keyPairingText)
		if len(fields) > 0 {
			if s.pairingExtra == nil {
				s.pairingExtra = map[string]map[string]json.RawMessage{}
			}
			s.pairingExtra[id] = fields
		}
	}
	return faults
}

// document encodes s for storage. Unknown keys read by [parseDocument] are
// written back unchanged; the typed fields take precedence.
func (s GuildSettings) document() ([]byte, error) {
	typed, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(typed, &out); err != nil {
		return nil, err
	}
	for key, val := range s.extra {
		if _, ok := out[key]; !ok {
			out[key] = val
		}
	}

	pairings := make(map[string]json.RawMessage, len(s.AutoJoinConfig)+len(s.foreignPairings))
	maps.Copy(pairings, s.foreignPairings)
	for id, p := range s.AutoJoinConfig {
		fields := maps.Clone(s.pairingExtra[id])
		if fields == nil {
			fields = make(map[string]json.RawMessage, 2)
		}
		fields[keyPairingVoice] = json.RawMessage(strconv.FormatInt(p.VoiceChannelID, 10))
		fields[keyPairingText] = json.RawMessage(strconv.FormatInt(p.TextChannelID, 10))
		entry, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		pairings[id] = entry
	}
	section, err := json.Marshal(pairings)
	if err != nil {
		return nil, err
	}
	out[keyAutoJoinConfig] = section
	return json.Marshal(out)
}

// dropPairing removes every trace of the pairing of botInstanceID and reports
// whether there was one.
func (s *GuildSettings) dropPairing(botInstanceID string) bool {
	_, typed := s.AutoJoinConfig[botInstanceID]
	_, foreign := s.foreignPairings[botInstanceID]
	delete(s.AutoJoinConfig, botInstanceID)
	delete(s.pairingExtra, botInstanceID)
	delete(s.foreignPairings, botInstanceID)
	return typed || foreign
}
