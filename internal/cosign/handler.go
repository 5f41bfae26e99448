package cosign

import (
	"context"
	"net/http"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/flow-authz/internal/keymgmt"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/middleware"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/reject"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/utils"
	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
	"github.com/kollektive-hackathon/flow-authz/pkg/fcl/address"
	"github.com/onflow/flow-go-sdk"
	"github.com/onflow/flow-go-sdk/crypto/cloudkms"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

type cosignHandler struct {
	cosign *cosignService
}

type CreateWalletRequest struct {
	Address  string `json:"address"`
	KeyIndex int    `json:"keyIndex"`
}

func RegisterRoutesAndSubscriptions(rg *gin.RouterGroup, db *gorm.DB, kmsClient *cloudkms.Client, registry *address.Registry) {
	chainID := blockchain.ChainID()
	policy, err := loadCadencePolicy(viper.GetString("COSIGN_ALLOWED_CADENCE"), registry, chainID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load cosign cadence templates")
	}
	if len(policy.allowed) == 0 {
		log.Warn().Msg("No cosign cadence templates configured, any transaction will be co-signed")
	}

	handler := &cosignHandler{
		cosign: newCosignService(
			&gormWalletRepository{db: db},
			func(ctx context.Context, resourceID string) (fcl.MessageSigner, error) {
				return keymgmt.LoadSigner(ctx, kmsClient, resourceID)
			},
			func(ctx context.Context, keyIndex, weight int) (*flow.AccountKey, *keymgmt.PrivateKey, error) {
				return keymgmt.GenerateAsymetricKey(ctx, kmsClient, keyIndex, weight)
			},
			func(message pubsub.Publishable) { go pubsub.Publish(message) },
			blockchain.GetCosignAuthorizer(),
			policy,
			viper.GetString("COSIGN_PUBLIC_URL"),
		),
	}

	handler.register(rg.Group("/cosign"), middleware.VerifyAuthToken)

	go pubsub.Subscribe(pubsub.SubscriptionHandler{
		SubscriptionId: "flow-authz.signable.requested-sub",
		Handler:        handler.handleSignableRequested,
	})
}

func (ch cosignHandler) register(routes *gin.RouterGroup, auth gin.HandlerFunc) {
	routes.POST("/pre-authz", auth, ch.handlePreAuthz)
	routes.POST("/authz", auth, ch.handleAuthz)
	routes.POST("/wallets", auth, ch.handleCreateWallet)
	routes.GET("/wallets/:address", auth, ch.handleGetWallet)
}

func (ch cosignHandler) handlePreAuthz(c *gin.Context) {
	body := fcl.PreSignable{}

	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	response, problem := ch.cosign.PreAuthz(body)
	if problem != nil {
		respondProblem(c, problem)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (ch cosignHandler) handleAuthz(c *gin.Context) {
	body := fcl.Signable{}

	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	response, problem := ch.cosign.VerifyAndSign(c.Request.Context(), utils.GetUserExternalId(c), body)
	if problem != nil {
		respondProblem(c, problem)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (ch cosignHandler) handleCreateWallet(c *gin.Context) {
	body := CreateWalletRequest{}

	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	wallet, problem := ch.cosign.CreateWallet(c.Request.Context(), utils.GetUserExternalId(c), body)
	if problem != nil {
		respondProblem(c, problem)
		return
	}

	c.JSON(http.StatusCreated, wallet)
}

func (ch cosignHandler) handleGetWallet(c *gin.Context) {
	wallet, problem := ch.cosign.GetWallet(utils.GetUserExternalId(c), c.Param("address"))
	if problem != nil {
		respondProblem(c, problem)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// handleSignableRequested signs signables queued by trusted backends. Only
// the co-signer key is available on this path.
func (ch cosignHandler) handleSignableRequested(ctx context.Context, message *gcppubsub.Message) {
	log.Info().Msg("Received signable request " + message.ID)
	signable, err := utils.JsonDecodeByteStream[fcl.Signable](message.Data)
	if err != nil {
		log.Warn().Err(err).Msg("Error while parsing signable request")
		message.Ack()
		return
	}

	if _, problem := ch.cosign.VerifyAndSign(ctx, "", *signable); problem != nil {
		log.Warn().Err(problem.Cause).Msg("Rejected signable request " + message.ID)
		if problem.Problem.Status >= http.StatusInternalServerError {
			message.Nack()
			return
		}
	}
	message.Ack()
}

func respondProblem(c *gin.Context, problem *reject.ProblemWithTrace) {
	if problem.Cause != nil {
		log.Warn().Err(problem.Cause).Str("path", c.FullPath()).Msg(problem.Problem.Title)
	}
	c.JSON(problem.Problem.Status, problem.Problem)
}
