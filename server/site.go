package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rouilleftpd/rouilleftpd/internal/quota"
)

// siteCHMOD implements SITE CHMOD <mode> <file>.
func (s *session) siteCHMOD(args []string) {
	if len(args) < 2 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	mode, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil {
		s.reply(501, "Invalid mode.")
		return
	}
	if mode > 0777 {
		s.reply(501, "Invalid mode: special bits not allowed.")
		return
	}
	path := strings.Join(args[1:], " ")
	if err := s.fs.Chmod(path, os.FileMode(mode)); err != nil {
		s.replyError(err)
		return
	}
	s.reply(200, "SITE CHMOD command successful.")
}

// userAdmin returns the session's driver as the account-administration
// interface VFSDriver implements, reporting 502 if the configured driver
// doesn't support SITE account management.
func (s *session) userAdmin() (*VFSDriver, bool) {
	admin, ok := s.server.driver.(*VFSDriver)
	if !ok {
		s.reply(502, "SITE command not supported by this server backend.")
		return nil, false
	}
	return admin, true
}

// siteADDUSER implements SITE ADDUSER <name> <password>.
func (s *session) siteADDUSER(args []string) {
	admin, ok := s.userAdmin()
	if !ok {
		return
	}
	if len(args) < 2 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	if err := admin.AddUser(args[0], args[1]); err != nil {
		if errors.Is(err, ErrUserExists) {
			s.reply(550, "User already exists.")
			return
		}
		s.reply(550, err.Error())
		return
	}
	s.reply(200, fmt.Sprintf("User %s added.", args[0]))
}

// siteDELUSER implements SITE DELUSER <name>.
func (s *session) siteDELUSER(args []string) {
	admin, ok := s.userAdmin()
	if !ok {
		return
	}
	if len(args) < 1 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	if err := admin.DeleteUser(args[0]); err != nil {
		s.replyError(err)
		return
	}
	s.reply(200, fmt.Sprintf("User %s deleted.", args[0]))
}

// siteADDIP implements SITE ADDIP <name> <ident@host>...
func (s *session) siteADDIP(args []string) {
	admin, ok := s.userAdmin()
	if !ok {
		return
	}
	if len(args) < 2 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	if err := admin.AddIPs(args[0], args[1:]); err != nil {
		s.reply(501, err.Error())
		return
	}
	s.reply(200, "IP(s) added.")
}

// siteDELIP implements SITE DELIP <name> <ident@host>...
func (s *session) siteDELIP(args []string) {
	admin, ok := s.userAdmin()
	if !ok {
		return
	}
	if len(args) < 2 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	if err := admin.DelIPs(args[0], args[1:]); err != nil {
		s.replyError(err)
		return
	}
	s.reply(200, "IP(s) removed.")
}

// siteUSER implements SITE USER [name]: with no argument, lists non-deleted
// users; with a name, reports that user's flags/ratio/credits/tagline.
func (s *session) siteUSER(args []string) {
	admin, ok := s.userAdmin()
	if !ok {
		return
	}

	if len(args) == 0 {
		names, err := admin.ListUsers()
		if err != nil {
			s.replyError(err)
			return
		}
		fmt.Fprintf(s.writer, "200-Users:\r\n")
		for _, name := range names {
			fmt.Fprintf(s.writer, " %s\r\n", name)
		}
		fmt.Fprintf(s.writer, "200 End of user list\r\n")
		s.writer.Flush()
		return
	}

	uf, err := admin.UserReport(args[0])
	if err != nil {
		s.replyError(err)
		return
	}
	fmt.Fprintf(s.writer, "200-User: %s\r\n", uf.Username)
	fmt.Fprintf(s.writer, " Group: %s\r\n", uf.Group)
	fmt.Fprintf(s.writer, " Flags: %s\r\n", uf.Flags)
	fmt.Fprintf(s.writer, " Ratio: %s\r\n", uf.Ratio)
	fmt.Fprintf(s.writer, " Credits: %d\r\n", uf.Credits)
	fmt.Fprintf(s.writer, " Tagline: %s\r\n", uf.Tagline)
	fmt.Fprintf(s.writer, "200 End of user report\r\n")
	s.writer.Flush()
}

// siteUTIME implements SITE UTIME <file> <atime> <mtime> <ctime> <tz>,
// each timestamp YYYYMMDDHHMMSS. atime and mtime are applied; ctime is
// parsed for validity but ignored (the filesystem owns ctime); the
// timezone token must be present but is not parsed.
func (s *session) siteUTIME(args []string) {
	if len(args) < 5 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	path := args[0]

	stamps := make([]time.Time, 3)
	for i := 0; i < 3; i++ {
		t, err := time.Parse("20060102150405", args[1+i])
		if err != nil {
			s.reply(501, "Invalid timestamp.")
			return
		}
		stamps[i] = t
	}
	atime, mtime := stamps[0], stamps[1]

	type timesSetter interface {
		SetTimes(path string, atime, mtime time.Time) error
	}
	var err error
	if ts, ok := s.fs.(timesSetter); ok {
		err = ts.SetTimes(path, atime, mtime)
	} else {
		err = s.fs.SetTime(path, mtime)
	}
	if err != nil {
		s.replyError(err)
		return
	}
	s.reply(200, "SITE UTIME command successful.")
}

// siteQUOTA implements SITE QUOTA <user> [bytes]: with one argument,
// reports the user's quota; with two, sets it.
func (s *session) siteQUOTA(args []string) {
	if s.server.quotaManager == nil {
		s.reply(502, "Quota tracking is not enabled on this server.")
		return
	}
	if len(args) < 1 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	username := args[0]

	if len(args) == 1 {
		q := s.server.quotaManager.QuotaFor(username, s.quotaBaseDir())
		s.reply(200, fmt.Sprintf("Quota for %s: %s", username, q.FormatQuota()))
		return
	}

	maxBytes, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || maxBytes < 0 {
		s.reply(501, "Invalid quota size.")
		return
	}
	q := quota.NewUserQuota(username, maxBytes, s.quotaBaseDir())
	s.server.quotaManager.SetQuota(q)
	s.reply(200, fmt.Sprintf("Quota for %s set to %s", username, q.FormatQuota()))
}

// siteRATIO implements SITE RATIO <user> [up:down]: with one argument,
// reports the user's ratio; with two, sets it.
func (s *session) siteRATIO(args []string) {
	if s.server.quotaManager == nil {
		s.reply(502, "Ratio tracking is not enabled on this server.")
		return
	}
	if len(args) < 1 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	username := args[0]

	if len(args) == 1 {
		r, err := s.server.quotaManager.RatioFor(username)
		if err != nil {
			s.reply(501, err.Error())
			return
		}
		s.reply(200, fmt.Sprintf("Ratio for %s: %s", username, r.FormatRatio()))
		return
	}

	r, err := quota.ParseUserRatio(username, args[1])
	if err != nil {
		s.reply(501, "Invalid ratio.")
		return
	}
	s.server.quotaManager.SetRatio(r)
	s.reply(200, fmt.Sprintf("Ratio for %s set to %s", username, r.ConfiguredRatioString()))
}

// siteGROUP implements SITE GROUP <name> [bytes]: with one argument,
// reports the group's quota; with two, sets it.
func (s *session) siteGROUP(args []string) {
	if s.server.quotaManager == nil {
		s.reply(502, "Quota tracking is not enabled on this server.")
		return
	}
	if len(args) < 1 {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}
	groupname := args[0]

	if len(args) == 1 {
		g := s.server.quotaManager.GroupQuotaFor(groupname)
		label := "Unlimited"
		if !g.IsUnlimited {
			label = fmt.Sprintf("%d bytes", g.MaxBytes)
		}
		s.reply(200, fmt.Sprintf("Quota for group %s: %s", groupname, label))
		return
	}

	maxBytes, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || maxBytes < 0 {
		s.reply(501, "Invalid quota size.")
		return
	}
	g := quota.NewGroupQuota(groupname, maxBytes)
	s.server.quotaManager.SetGroupQuota(g)
	s.reply(200, fmt.Sprintf("Quota for group %s set.", groupname))
}

// siteWHO implements SITE WHO: lists every connected session with its user
// and connection duration.
func (s *session) siteWHO() {
	sessions := s.server.liveSessions()
	fmt.Fprintf(s.writer, "200-Online users:\r\n")
	now := time.Now()
	for _, sess := range sessions {
		user := sess.user
		if user == "" {
			user = "(not logged in)"
		}
		fmt.Fprintf(s.writer, " %s %s connected %s\r\n",
			user, sess.redactIP(sess.remoteIP), now.Sub(sess.connectedAt).Round(time.Second))
	}
	fmt.Fprintf(s.writer, "200 End of WHO\r\n")
	s.writer.Flush()
}

// siteNEW implements SITE NEW: the most recently modified files on the
// site, newest first.
func (s *session) siteNEW() {
	admin, ok := s.userAdmin()
	if !ok {
		return
	}
	entries, err := admin.ListNewest()
	if err != nil {
		s.replyError(err)
		return
	}
	fmt.Fprintf(s.writer, "200-New files:\r\n")
	for _, e := range entries {
		fmt.Fprintf(s.writer, " %s %d %s\r\n", e.ModTime.Format("2006-01-02 15:04:05"), e.Size, e.VirtualPath)
	}
	fmt.Fprintf(s.writer, "200 End of new file list\r\n")
	s.writer.Flush()
}

// siteIDLE implements SITE IDLE: reports how long this session has gone
// without issuing a command. Informational only; no enforcement.
func (s *session) siteIDLE() {
	idle := time.Since(s.lastCommandAt).Round(time.Second)
	s.reply(200, fmt.Sprintf("Idle time: %s", idle))
}
