package probe

// wellKnownPorts names the conventional service behind common ports, used
// to annotate scan output. Deliberately small; unknown ports stay blank.
var wellKnownPorts = map[uint16]string{
	20:    "ftp-data",
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "dns",
	80:    "http",
	110:   "pop3",
	119:   "nntp",
	123:   "ntp",
	135:   "msrpc",
	139:   "netbios-ssn",
	143:   "imap",
	161:   "snmp",
	389:   "ldap",
	443:   "https",
	445:   "smb",
	465:   "smtps",
	514:   "syslog",
	587:   "submission",
	631:   "ipp",
	636:   "ldaps",
	993:   "imaps",
	995:   "pop3s",
	1080:  "socks",
	1433:  "mssql",
	1521:  "oracle",
	1723:  "pptp",
	2049:  "nfs",
	2375:  "docker",
	3128:  "squid",
	3306:  "mysql",
	3389:  "rdp",
	5060:  "sip",
	5432:  "postgresql",
	5672:  "amqp",
	5900:  "vnc",
	6379:  "redis",
	8080:  "http-alt",
	8443:  "https-alt",
	9092:  "kafka",
	9200:  "elasticsearch",
	11211: "memcached",
	27017: "mongodb",
}

// PortDescription returns the conventional service name for port, "" when
// the port is not in the table.
func PortDescription(port uint16) string {
	return wellKnownPorts[port]
}
