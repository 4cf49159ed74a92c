package registry

import (
	"crypto/md5" //nolint:gosec // not a security boundary: a stable, collision-tolerant surrogate key
	"encoding/hex"
	"fmt"
	"net"
	"strconv"

	"github.com/nabbar/ottd-masterserver/session"
)

func computeServerID(ip net.IP, port uint16) ServerID {
	var canonical string
	if v4 := ip.To4(); v4 != nil {
		canonical = fmt.Sprintf("%s:%d", v4.String(), port)
	} else {
		canonical = fmt.Sprintf("[%s]:%d", ip.String(), port)
	}

	sum := md5.Sum([]byte(canonical)) //nolint:gosec
	return ServerID(hex.EncodeToString(sum[:]))
}

func formatSessionKey(k session.Key) string {
	return strconv.FormatUint(uint64(k), 16)
}
