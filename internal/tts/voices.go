package tts

import (
	"sort"
	"strings"
)

// SortVoices orders voices for display: en-US first, then zh-CN, then the
// rest, each group by ShortName.
func SortVoices(voices []Voice) []Voice {
	sorted := append([]Voice(nil), voices...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := voiceRank(sorted[i]), voiceRank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return sorted[i].ShortName < sorted[j].ShortName
	})
	return sorted
}

func voiceRank(v Voice) int {
	switch {
	case strings.HasPrefix(v.ShortName, "en-US"):
		return 0
	case strings.HasPrefix(v.ShortName, "zh-CN"):
		return 1
	default:
		return 2
	}
}

// FindVoice resolves a voice by ShortName or full Name.
func FindVoice(voices []Voice, name string) (Voice, bool) {
	for _, v := range voices {
		if v.ShortName == name || v.Name == name {
			return v, true
		}
	}
	return Voice{}, false
}
