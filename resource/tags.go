package resource

import "github.com/unkn0wn-root/tagcache"

// ListTags tags a list result with "<resource>:LIST" plus one id tag per
// record, so editing one record refreshes every list that shows it.
// Single-record results get their id tag only.
func ListTags[T Record](resource string) tagcache.TagFunc {
	return func(q tagcache.Query, data any) []tagcache.Tag {
		switch v := data.(type) {
		case []T:
			tags := make([]tagcache.Tag, 0, len(v)+1)
			tags = append(tags, tagcache.ListTag(resource))
			for _, rec := range v {
				tags = append(tags, tagcache.IDTag(resource, rec.Identity()))
			}
			return tags
		case T:
			return []tagcache.Tag{tagcache.IDTag(resource, v.Identity())}
		}
		if q.Operation == tagcache.OpList || q.Operation == "" {
			return []tagcache.Tag{tagcache.ListTag(resource)}
		}
		return nil
	}
}
