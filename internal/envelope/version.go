package envelope

import (
	"strconv"
	"strings"
)

// Version is a parsed MAJOR.MINOR protocol_version string.
type Version struct {
	Major int
	Minor int
}

func ParseVersion(s string) (Version, bool) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return Version{}, false
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return Version{}, false
	}
	return Version{Major: major, Minor: minor}, true
}

func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Negotiate picks the highest version present in both lists sharing the
// local major version (spec §4.4 "Version negotiation"). ok is false on a
// MAJOR mismatch, which is fatal per spec.
func Negotiate(local Version, localSupported []Version, remote Version, remoteSupported []Version) (Version, bool) {
	if local.Major != remote.Major {
		return Version{}, false
	}

	remoteSet := make(map[Version]bool, len(remoteSupported))
	for _, v := range remoteSupported {
		remoteSet[v] = true
	}

	var best Version
	found := false
	for _, v := range localSupported {
		if v.Major != local.Major {
			continue
		}
		if remoteSet[v] {
			if !found || best.Less(v) {
				best = v
				found = true
			}
		}
	}
	if !found {
		return Version{}, false
	}
	return best, true
}
