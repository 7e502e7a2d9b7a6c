// Copyright 2025 The OpenRPKI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

const idSample = "rpkid-1"

const serverSample = `
# The address to listen on for left-right, up-down and cronjob requests.
# Empty listens on all addresses. (default "")
host = ""
# The port to listen on. (default 4433)
port = 4433
# The maximum number of concurrently served connections. (default 64)
max_connections = 64
`

const bpkiSample = `
# The key that signs replies and requests. PEM or DER. (required)
cms_key = "/etc/rpkid/bpki/rpkid.key"
# The certificate of cms_key, optionally followed by its issuers. (required)
cms_certs = "/etc/rpkid/bpki/rpkid.cer"
# The trust anchor of the management interface. (required)
irbe_ta = "/etc/rpkid/bpki/irbe-ta.cer"
`

const publicationSample = `
# The publication backend.
#
# - fs:   objects are written below path, one directory per rsync host.
# - bolt: objects are stored in the bbolt database file at path.
#
# (default fs)
backend = "fs"
# The root directory or database file. (default /var/lib/rpkid/publication)
path = "/var/lib/rpkid/publication"
`

const caSample = `
# The size of generated RSA keys. (default 2048)
key_bits = 2048
# The default CRL and manifest validity of new CAs. (default 6h)
crl_interval = "6h"
# How long before expiry objects are regenerated. (default 2h)
regen_margin = "2h"
# The validity of certificates issued to children. (default 30d)
child_validity = "30d"
# The validity of self-signed trust anchor certificates. (default 365d)
ta_validity = "365d"
# The validity of ROA and Ghostbuster EE certificates. (default 30d)
ee_validity = "30d"
`

const upDownSample = `
# How long received up-down requests are remembered to reject replays.
# (default 10m)
replay_window = "10m"
# The timeout of a request to a parent. (default 30s)
client_timeout = "30s"
`

const maintenanceSample = `
# The interval between maintenance passes. If 0, maintenance only runs when
# triggered through the cronjob endpoint. (default 0)
interval = "0s"
# The interval between removals of expired revocation entries. (default 1h)
cleaner_interval = "1h"
`
