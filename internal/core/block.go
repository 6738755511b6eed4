package core

// Block is an ordered programming playlist of content keys played
// back-to-back under one continuous live event. The engine only reads the
// ordered key list; display metadata stays with the catalog.
type Block struct {
	ID          string   `json:"id"`
	ContentKeys []string `json:"content_keys"`
}

func (b *Block) Len() int {
	return len(b.ContentKeys)
}

func (b *Block) Empty() bool {
	return len(b.ContentKeys) == 0
}

// KeyAt returns the content key at the given index, or false when the
// block is exhausted.
func (b *Block) KeyAt(index int) (string, bool) {
	if index < 0 || index >= len(b.ContentKeys) {
		return "", false
	}
	return b.ContentKeys[index], true
}
