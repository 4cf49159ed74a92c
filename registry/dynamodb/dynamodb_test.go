package dynamodb_test

import (
	"context"
	"net"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/ottd-masterserver/protocol"
	ddbreg "github.com/nabbar/ottd-masterserver/registry/dynamodb"
	"github.com/nabbar/ottd-masterserver/session"
)

// This suite requires a real (or local, e.g. dynamodb-local) table and is
// skipped unless OTTD_TEST_DYNAMODB_TABLE names one, mirroring the
// TELEPORT_TEST_DYNAMODB_CONFIG-gated suite it is grounded on.
var _ = Describe("Registry", func() {
	var table string

	BeforeEach(func() {
		table = os.Getenv("OTTD_TEST_DYNAMODB_TABLE")
		if table == "" {
			Skip("set OTTD_TEST_DYNAMODB_TABLE to run the DynamoDB registry suite")
		}
	})

	It("stores and serves an online server", func() {
		ctx := context.Background()

		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		Expect(err).ToNot(HaveOccurred())

		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if ep := os.Getenv("OTTD_TEST_DYNAMODB_ENDPOINT"); ep != "" {
				o.BaseEndpoint = aws.String(ep)
			}
		})

		r := ddbreg.New(client, table)
		sk := session.Key(0x1000000000001)
		ip := net.ParseIP("10.0.0.9")
		info := &protocol.GameInfo{Name: "Integration", OpenTTDVersion: "1.11"}

		ok, err := r.ServerOnline(ctx, sk, ip, 4242, info)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())

		list, err := r.GetServerListForClient(ctx, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(list).ToNot(BeEmpty())

		Expect(r.ServerOffline(ctx, ip, 4242)).To(Succeed())
	})
})
