// Package server implements the FTP protocol engine behind rouilleftpd:
// per-connection sessions, the command dispatch table, passive/active data
// channels, quota and ratio admission, the SITE operator verb layer, and
// the telemetry scoreboard hookup.
//
// # Overview
//
// A Server accepts control connections and runs one session goroutine per
// client. All filesystem access goes through a Driver; the daemon uses
// VFSDriver, which chroots every session to a shared site root enforced in
// userspace and authenticates against a bcrypt passwd store plus glFTPd
// style per-user files.
//
//	passwds, _ := ftpserver.LoadPasswdStore("/etc/rouilleftpd.passwd")
//	driver, _ := server.NewVFSDriver("/srv/ftp", "/srv/ftp/ftp-data/users", passwds, &server.Settings{})
//	s, err := server.NewServer(":21", server.WithDriver(driver))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
//
// # Quotas, ratios, and telemetry
//
// Storage quotas and upload:download ratios are enforced when a quota
// manager is attached; refusals surface to clients as 552:
//
//	mgr, _ := quota.NewManager(quota.Config{
//	    QuotaFile: "ftp-data/quota.json",
//	    RatioFile: "ftp-data/ratio.json",
//	    StatsFile: "ftp-data/stats.json",
//	    EnforceQuota: true,
//	    EnforceRatio: true,
//	})
//	ring := telemetry.NewRing("0x0000DEAD")
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithQuotaManager(mgr),
//	    server.WithTelemetryRing(ring),
//	)
//
// # FTPS Support
//
// The server supports Explicit FTPS (AUTH TLS, RFC 4217) on the control
// port and Implicit FTPS on a dedicated TLS listener:
//
//	cert, _ := tls.LoadX509KeyPair("server.crt", "server.key")
//	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithTLS(tlsConfig),
//	)
//
// For Implicit FTPS, serve on a TLS listener directly:
//
//	ln, _ := tls.Listen("tcp", ":990", tlsConfig)
//	s.Serve(ln)
//
// # Passive Mode Configuration
//
// Behind NAT or in containers, set the advertised host and port range:
//
//	settings := &server.Settings{
//	    PublicHost:  "ftp.example.com", // advertised in PASV replies
//	    PasvMinPort: 30000,
//	    PasvMaxPort: 30100,
//	}
//
// The port range must be reachable through the firewall; the PublicHost
// falls back to the control connection's local address when unset.
//
// # Custom Drivers
//
// Any backend can stand in for the filesystem by implementing Driver and
// ClientContext:
//
//	type Driver interface {
//	    Authenticate(user, pass, host string) (ClientContext, error)
//	}
//
// # SITE administration
//
// When the configured driver is a VFSDriver, the SITE verb layer exposes
// glFTPd-style account management (ADDUSER, DELUSER, ADDIP, DELIP, USER)
// alongside QUOTA, RATIO, GROUP, CHMOD, UTIME, WHO, NEW, and IDLE. Other
// drivers get 502 for the account verbs and for NEW.
//
// # RFC Compliance
//
// This package implements:
//   - RFC 959 (Base FTP)
//   - RFC 1123 (Requirements for Internet Hosts - minimum implementation)
//   - RFC 2389 (Feature Negotiation)
//   - RFC 2428 (EPSV/EPRT; disabled by default in the daemon)
//   - RFC 3659 (SIZE, MDTM, MLSD, MLST, REST; the latter three disabled by default)
//   - RFC 4217 (Securing FTP with TLS)
package server
