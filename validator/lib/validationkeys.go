package librpki

// Keys of the checks recorded in a ValidationResult.
const (
	OBJECTS_GENERAL_PARSING       = "objects.general.parsing"
	OBJECTS_CRL_VALID             = "objects.crl.valid"
	KNOWN_OBJECT_TYPE             = "known.object.type"
	TRUST_ANCHOR_PUBLIC_KEY_MATCH = "trust.anchor.public.key.match"

	// Certificate chain
	ISSUER_IS_CA            = "cert.issuer.is.ca"
	SIGNATURE_VALID         = "cert.signature"
	NOT_VALID_BEFORE        = "cert.not.valid.before"
	NOT_VALID_AFTER         = "cert.not.valid.after"
	RESOURCE_RANGE          = "cert.resource.range.is.valid"
	ROOT_INHERITS_RESOURCES = "cert.root.resource.uses.inherit"
	PREV_SUBJECT_EQ_ISSUER  = "cert.issuer.eq.prev.subject"
	KEY_USAGE_EXT_PRESENT   = "cert.key.usage.extension.present"
	KEY_CERT_SIGN           = "cert.key.cert.sign"
	CRL_SIGN                = "cert.crl.sign"
	DIG_SIGN                = "cert.dig.sign"
	SKI_PRESENT             = "cert.ski.present"
	AKI_PRESENT             = "cert.aki.present"
	PREV_SKI_EQ_AKI         = "cert.aki.eq.prev.ski"
	CERT_NOT_REVOKED        = "cert.not.revoked"

	// CRL
	CRL_PARSED                 = "crl.parsed"
	CRL_SIGNATURE_VALID        = "cert.crl.signature"
	CRL_REQUIRED               = "crl.required"
	CRL_NEXT_UPDATE_BEFORE_NOW = "crl.next.update.before.now"
	CRL_AKI_MISMATCH           = "crl.aki.mismatch"

	// Certificate structure
	CERTIFICATE_PARSED              = "cert.parsed"
	CERTIFICATE_SIGNATURE_ALGORITHM = "cert.signature.algorithm"
	PUBLIC_KEY_CERT_ALGORITHM       = "cert.public.key.algorithm"
	PUBLIC_KEY_CERT_SIZE            = "cert.public.key.size"
	CRLDP_PRESENT                   = "cert.crldp.present"
	CRLDP_OMITTED                   = "cert.crldp.omitted"
	CRITICAL_EXT_PRESENT            = "cert.critical.exts.present"
	POLICY_EXT_CRITICAL             = "cert.policy.ext.critical"
	POLICY_EXT_VALUE                = "cert.policy.ext.value"
	SINGLE_CERT_POLICY              = "cert.single.cert.policy"
	POLICY_QUALIFIER                = "cert.policy.qualifier.present"
	POLICY_ID_PRESENT               = "cert.policy.id.present"
	POLICY_ID_VERSION               = "cert.policy.id.version"
	POLICY_VALIDATION               = "cert.policy.validation"
	RESOURCE_EXT_PRESENT            = "cert.resource.ext.present"
	RESOURCE_EXT_NOT_PRESENT        = "cert.resource.ext.not.present"
	RESOURCE_EXT_CRITICAL           = "cert.resource.ext.critical"
	AS_OR_IP_RESOURCE_PRESENT       = "cert.as.or.ip.resource.present"
	PARTIAL_INHERITANCE             = "cert.partial.resource.inheritance"
	CERT_ISSUER_CORRECT             = "cert.issuer.correct"
	CERT_SUBJECT_CORRECT            = "cert.subject.correct"
	CERT_SIA_IS_PRESENT             = "cert.sia.present"

	// CMS
	CMS_DATA_PARSING                 = "cms.signed.data.parsing"
	CMS_SIGNED_DATA_VERSION          = "cms.signed.data.version"
	CMS_SIGNED_DATA_DIGEST_ALGORITHM = "cms.signed.data.digest.algorithm"
	CMS_CONTENT_TYPE                 = "cms.content.type"
	DECODE_CONTENT                   = "cms.decode.content"
	ONLY_ONE_SIGNED_OBJECT           = "cms.only.one.signed.object"
	CMS_CONTENT_PARSING              = "cms.content.parsing"
	GET_CERTS_AND_CRLS               = "cms.get.certs.and.crls"
	ONLY_ONE_EE_CERT_ALLOWED         = "cms.only.one.ee.cert"
	CERT_IS_X509CERT                 = "cms.cert.is.x509"
	CERT_IS_EE_CERT                  = "cms.cert.is.ee.cert"
	ONLY_ONE_CRL_ALLOWED             = "cms.only.one.crl"
	CRL_IS_X509CRL                   = "cms.crl.is.x509"
	CERT_HAS_SKI                     = "cms.cert.has.ski"
	GET_SIGNER_INFO                  = "cms.signature.signer.info"
	ONLY_ONE_SIGNER                  = "cms.signature.has.one.signer"
	CMS_SIGNER_INFO_VERSION          = "cms.signer.info.version"
	CMS_SIGNER_INFO_DIGEST_ALGORITHM = "cms.signer.info.digest.algorithm"
	CMS_SIGNER_INFO_SKI              = "cms.signer.info.ski"
	CMS_SIGNER_INFO_SKI_ONLY         = "cms.signer.info.ski.only"
	ENCRYPTION_ALGORITHM             = "cms.encryption.algorithm"
	SIGNED_ATTRS_PRESENT             = "cms.signed.attrs.present"
	SIGNED_ATTRS_CORRECT             = "cms.signed.attrs.correct"
	CONTENT_TYPE_ATTR_PRESENT        = "cms.content.type.attr.present"
	CONTENT_TYPE_VALUE_COUNT         = "cms.content.type.value.count"
	CONTENT_TYPE_VALUE               = "cms.content.type.value"
	MSG_DIGEST_ATTR_PRESENT          = "cms.msg.digest.attr.present"
	MSG_DIGEST_VALUE_COUNT           = "cms.msg.digest.value.count"
	SIGNING_TIME_ATTR_PRESENT        = "cms.signing.time.attr.present"
	ONLY_ONE_SIGNING_TIME_ATTR       = "cms.only.one.signing.time.attr"
	SIGNER_ID_MATCH                  = "cms.signer.id.match.cert"
	SIGNATURE_VERIFICATION           = "cms.signature"
	UNSIGNED_ATTRS_OMITTED           = "cms.unsigned.attrs.omitted"

	// Provisioning
	VALID_PAYLOAD_TYPE    = "provisioning.valid.payloadtype"
	FOUND_PAYLOAD_TYPE    = "provisioning.found.payloadtype"
	VALID_PAYLOAD_VERSION = "provisioning.valid.payloadversion"

	// ROA
	ROA_CONTENT_TYPE                = "roa.content.type"
	ROA_CONTENT_STRUCTURE           = "roa.content.structure"
	ROA_RESOURCES                   = "roa.resources"
	ASN_AND_PREFIXES_IN_DER_SEQ     = "roa.seq.has.asn.and.prefixes"
	ROA_ATTESTATION_VERSION         = "roa.attestation.version"
	ROA_PREFIX_LIST                 = "roa.prefix.list.not.empty"
	ADDR_FAMILY_AND_ADDR_IN_DER_SEQ = "roa.seq.has.addr.family.and.addressed"
	ADDR_FAMILY                     = "roa.addr.family.valid"
	PREFIX_IN_ADDR_FAMILY           = "roa.addr.family.contains.prefix"
	PREFIX_LENGTH                   = "roa.prefix.length"

	// Manifest
	MANIFEST_CONTENT_TYPE          = "mf.content.type"
	MANIFEST_CONTENT_STRUCTURE     = "mf.content.structure"
	MANIFEST_TIME_FORMAT           = "mf.time.format"
	MANIFEST_FILE_HASH_ALGORITHM   = "mf.file.hash.algorithm"
	MANIFEST_DECODE_FILELIST       = "mf.decode.filelist"
	MANIFEST_RESOURCE_INHERIT      = "mf.resource.inherit"
	MANIFEST_PAST_NEXT_UPDATE_TIME = "mf.past.next.update"

	// Local repository
	VALIDATOR_READ_FILE                      = "validator.read.file"
	VALIDATOR_FILE_CONTENT                   = "validator.file.content"
	VALIDATOR_URI_RSYNC_SCHEME               = "validator.uri.rsync.scheme"
	VALIDATOR_FETCHED_OBJECT_IS_CRL          = "validator.fetched.object.is.crl"
	VALIDATOR_MANIFEST_ENTRY_FOUND           = "validator.manifest.entry.found"
	VALIDATOR_MANIFEST_ENTRY_HASH_MATCHES    = "validator.manifest.entry.hash.matches"
	VALIDATOR_MANIFEST_DOES_NOT_CONTAIN_FILE = "validator.manifest.does.not.contain.file"
)
