package chat

import "sort"

// conversation reduces the participant stream of self to the messages
// exchanged with partner, one entry per id, in display order. A later
// delivery of an id replaces an earlier one.
func conversation(msgs []Message, self, partner string) []Message {
	idx := make(map[string]int, len(msgs))
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Between(self, partner) {
			continue
		}
		if i, ok := idx[m.ID]; ok {
			out[i] = m
			continue
		}
		idx[m.ID] = len(out)
		out = append(out, m)
	}
	sortMessages(out)
	return out
}

// sortMessages orders by effective time, then by id so equal timestamps
// keep the same order across renders.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ti, tj := msgs[i].EffectiveTime(), msgs[j].EffectiveTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// unviewedIDs returns the ids of msgs addressed to self and not yet viewed.
// Messages self sent are never included.
func unviewedIDs(msgs []Message, self string) []string {
	var ids []string
	for _, m := range msgs {
		if m.ID != "" && !m.Pending && m.UnviewedBy(self) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func tailID(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].ID
}
