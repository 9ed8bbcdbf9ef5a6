package docstore

import "strings"

// ValidCollectionPath reports whether p names a collection: an odd number of
// non-empty, slash separated segments ("profiles", "users/u1/connections").
func ValidCollectionPath(p string) bool {
	if p == "" {
		return false
	}
	parts := strings.Split(p, "/")
	if len(parts)%2 == 0 {
		return false
	}
	for _, s := range parts {
		if s == "" {
			return false
		}
	}
	return true
}

// DocPath joins a collection path and a document id.
func DocPath(collectionPath, id string) string {
	return collectionPath + "/" + id
}

// SplitDocPath is the inverse of DocPath.
func SplitDocPath(docPath string) (collectionPath, id string, ok bool) {
	i := strings.LastIndex(docPath, "/")
	if i <= 0 || i == len(docPath)-1 {
		return "", "", false
	}
	return docPath[:i], docPath[i+1:], true
}

func validWrite(w Write) bool {
	return ValidCollectionPath(w.Path) && w.ID != "" && !strings.Contains(w.ID, "/")
}
