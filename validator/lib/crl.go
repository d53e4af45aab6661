package librpki

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

var (
	OidSignatureSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	OidCRLNumber              = asn1.ObjectIdentifier{2, 5, 29, 20}
)

type CRLAuthKeyId struct {
	Id []byte `asn1:"optional,tag:0"`
}

// https://tools.ietf.org/html/rfc6487#section-5
func CreateCRL(c *x509.Certificate, rand io.Reader, priv interface{}, revokedCerts []pkix.RevokedCertificate, now, expiry time.Time, sn *big.Int) (crlBytes []byte, err error) {
	key, ok := priv.(crypto.Signer)
	if !ok {
		return nil, errors.New("x509: certificate private key does not implement crypto.Signer")
	}

	hashFunc := crypto.SHA256
	signatureAlgorithm := pkix.AlgorithmIdentifier{
		Algorithm:  OidSignatureSHA256WithRSA,
		Parameters: asn1.NullRawValue,
	}

	// Force revocation times to UTC per RFC 5280.
	revokedCertsUTC := make([]pkix.RevokedCertificate, len(revokedCerts))
	for i, rc := range revokedCerts {
		rc.RevocationTime = rc.RevocationTime.UTC()
		revokedCertsUTC[i] = rc
	}

	var issuer pkix.RDNSequence
	if _, err = asn1.Unmarshal(c.RawSubject, &issuer); err != nil {
		return nil, errors.Wrap(err, "decoding issuer name")
	}

	tbsCertList := pkix.TBSCertificateList{
		Version:             1,
		Signature:           signatureAlgorithm,
		Issuer:              issuer,
		ThisUpdate:          now.UTC(),
		NextUpdate:          expiry.UTC(),
		RevokedCertificates: revokedCertsUTC,
	}

	// Authority Key Id
	if len(c.SubjectKeyId) > 0 {
		var aki pkix.Extension
		aki.Id = AuthorityKeyIdentifier
		aki.Value, err = asn1.Marshal(CRLAuthKeyId{Id: c.SubjectKeyId})
		if err != nil {
			return
		}
		tbsCertList.Extensions = append(tbsCertList.Extensions, aki)
	}

	var snExt pkix.Extension
	snExt.Id = OidCRLNumber
	snExt.Value, err = asn1.Marshal(sn)
	if err != nil {
		return
	}
	tbsCertList.Extensions = append(tbsCertList.Extensions, snExt)

	tbsCertListContents, err := asn1.Marshal(tbsCertList)
	if err != nil {
		return
	}

	h := hashFunc.New()
	h.Write(tbsCertListContents)
	digest := h.Sum(nil)

	var signature []byte
	signature, err = key.Sign(rand, digest, hashFunc)
	if err != nil {
		return
	}

	return asn1.Marshal(pkix.CertificateList{
		TBSCertList:        tbsCertList,
		SignatureAlgorithm: signatureAlgorithm,
		SignatureValue:     asn1.BitString{Bytes: signature, BitLength: len(signature) * 8},
	})
}

type CRLBuilder struct {
	Issuer     *RPKICertificate
	SigningKey crypto.Signer
	ThisUpdate time.Time
	NextUpdate time.Time
	Number     *big.Int
	Revoked    []pkix.RevokedCertificate

	// Defaults to crypto/rand.
	Rand io.Reader
}

// Revoke adds a revoked serial number.
func (cb *CRLBuilder) Revoke(serial *big.Int, at time.Time) *CRLBuilder {
	cb.Revoked = append(cb.Revoked, pkix.RevokedCertificate{SerialNumber: serial, RevocationTime: at})
	return cb
}

func (cb *CRLBuilder) Build() (*RPKICRL, error) {
	switch {
	case cb.Issuer == nil:
		return nil, errors.New("no CRL issuer")
	case cb.SigningKey == nil:
		return nil, errors.New("no CRL signing key")
	case cb.Number == nil:
		return nil, errors.New("no CRL number")
	case cb.ThisUpdate.IsZero() || cb.NextUpdate.IsZero():
		return nil, errors.New("no CRL update times")
	case cb.NextUpdate.Before(cb.ThisUpdate):
		return nil, errors.New("CRL next update before this update")
	}
	random := cb.Rand
	if random == nil {
		random = rand.Reader
	}
	der, err := CreateCRL(cb.Issuer.Certificate, random, cb.SigningKey, cb.Revoked, cb.ThisUpdate, cb.NextUpdate, cb.Number)
	if err != nil {
		return nil, errors.Wrap(err, "signing CRL")
	}
	list, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, errors.Wrap(err, "parsing signed CRL")
	}
	return &RPKICRL{RevocationList: list}, nil
}

type RPKICRL struct {
	RevocationList *x509.RevocationList
}

func DecodeCRL(data []byte) (*RPKICRL, error) {
	list, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, err
	}
	return &RPKICRL{RevocationList: list}, nil
}

// ParseCRL decodes a CRL, recording CRL_PARSED at location. It returns
// nil when the CRL could not be decoded.
func ParseCRL(result *ValidationResult, location ValidationLocation, data []byte) *RPKICRL {
	defer result.PushLocation(location)()
	crl, err := DecodeCRL(data)
	if !result.RejectIfFalse(err == nil, CRL_PARSED) {
		return nil
	}
	return crl
}

func (crl *RPKICRL) Encoded() []byte {
	return crl.RevocationList.Raw
}

func (crl *RPKICRL) ThisUpdate() time.Time {
	return crl.RevocationList.ThisUpdate
}

func (crl *RPKICRL) NextUpdate() time.Time {
	return crl.RevocationList.NextUpdate
}

func (crl *RPKICRL) AuthorityKeyId() []byte {
	return crl.RevocationList.AuthorityKeyId
}

func (crl *RPKICRL) Number() *big.Int {
	return crl.RevocationList.Number
}

// IsRevoked returns true when serial was revoked at or before at.
func (crl *RPKICRL) IsRevoked(serial *big.Int, at time.Time) bool {
	for _, entry := range crl.RevocationList.RevokedCertificateEntries {
		if entry.SerialNumber.Cmp(serial) == 0 && !entry.RevocationTime.After(at) {
			return true
		}
	}
	return false
}

func (crl *RPKICRL) VerifySignature(issuer *RPKICertificate) error {
	return crl.RevocationList.CheckSignatureFrom(issuer.Certificate)
}

func (crl *RPKICRL) Equal(o *RPKICRL) bool {
	if crl == nil || o == nil {
		return crl == o
	}
	return bytes.Equal(crl.Encoded(), o.Encoded())
}
